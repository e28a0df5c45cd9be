package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/songline-backend/internal/engine"
	"github.com/DoyleJ11/songline-backend/internal/room"
	"github.com/DoyleJ11/songline-backend/internal/session"
	"github.com/DoyleJ11/songline-backend/internal/store"
	"github.com/DoyleJ11/songline-backend/internal/types"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrBadRequest   = errors.New("bad request")
)

const (
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeBadRequest   = "BAD_REQUEST"
	CodeInternal     = "INTERNAL"
)

// CodeOf extends the room and engine codes with the ones only the hub produces.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, types.ErrInvalidMessage):
		return CodeBadRequest
	case errors.Is(err, ErrHubStopped), errors.Is(err, ErrKeySpaceExhausted):
		return CodeInternal
	}
	return room.CodeOf(err)
}

// Attach registers a freshly opened connection.
func (h *Hub) Attach(c session.Conn) {
	h.idx.Attach(c)
}

// Dispatch handles one inbound message. Errors are reported to the connection as an Error
// frame exactly once, either here or by the room that rejected the message.
func (h *Hub) Dispatch(ctx context.Context, connID string, m types.ClientMessage) error {
	var err error
	switch m.Type {
	case types.MsgCreateRoom:
		err = h.CreateRoom(ctx, connID, engine.Mode(m.Mode))
	case types.MsgJoinRoom:
		err = h.JoinRoom(ctx, connID, m.RoomKey, m.Name, m.Avatar)
	case types.MsgLeave:
		err = h.Leave(ctx, connID, engine.PlayerID(m.PlayerID))
	case types.MsgRejoinHost:
		err = h.RejoinHost(ctx, connID, m.RoomID, m.RoomKey)
	default:
		err = h.act(ctx, connID, m)
	}
	if err != nil {
		h.log.Debug("message rejected", zap.String("conn_id", connID), zap.String("type", m.Type), zap.Error(err))
	}
	return err
}

// ReportInvalid tells a connection its frame could not be decoded.
func (h *Hub) ReportInvalid(connID string, err error) {
	h.report(connID, err)
}

// CreateRoom makes the connection the host of a new lobby, leaving whatever room it was in.
func (h *Hub) CreateRoom(ctx context.Context, connID string, mode engine.Mode) error {
	if mode == "" {
		mode = engine.ModeOriginal
	}
	if !engine.ValidMode(mode) {
		h.report(connID, ErrBadRequest)
		return ErrBadRequest
	}
	h.leaveCurrent(ctx, connID, "")

	r, err := h.newRoom(ctx, mode)
	if err != nil {
		h.report(connID, err)
		return err
	}
	return h.roomCall(connID, r.AttachHost(ctx, connID))
}

func (h *Hub) JoinRoom(ctx context.Context, connID, key, name, avatar string) error {
	r, err := h.RoomByKey(ctx, key)
	if err != nil {
		h.report(connID, err)
		return err
	}
	if r == nil {
		h.report(connID, ErrRoomNotFound)
		return ErrRoomNotFound
	}
	h.leaveCurrent(ctx, connID, r.ID())
	return h.roomCall(connID, r.Join(ctx, connID, name, avatar))
}

// Leave removes a player. Connections that are not in a room are ignored.
func (h *Hub) Leave(ctx context.Context, connID string, playerID engine.PlayerID) error {
	b, ok := h.idx.Lookup(connID)
	if !ok {
		return nil
	}
	r, err := h.RoomByID(ctx, b.RoomID)
	if err != nil || r == nil {
		return nil
	}
	return h.roomCall(connID, r.Leave(ctx, connID, playerID))
}

// Disconnect handles a closed transport and forgets the connection.
func (h *Hub) Disconnect(ctx context.Context, connID string) {
	defer h.idx.Detach(connID)
	b, ok := h.idx.Lookup(connID)
	if !ok {
		return
	}
	r, err := h.RoomByID(ctx, b.RoomID)
	if err != nil || r == nil {
		return
	}
	if err := r.Disconnect(ctx, connID); err != nil && !errors.Is(err, room.ErrRoomClosed) {
		h.log.Warn("disconnect failed", zap.String("conn_id", connID), zap.Error(err))
	}
}

// RejoinHost binds a host device to an existing room, reloading it from the store if it is
// not live.
func (h *Hub) RejoinHost(ctx context.Context, connID, roomID, key string) error {
	var r *room.Room
	var err error
	if roomID != "" {
		r, err = h.RoomByID(ctx, roomID)
	} else {
		r, err = h.RoomByKey(ctx, key)
	}
	if err != nil {
		h.report(connID, err)
		return err
	}
	if r == nil && roomID != "" {
		r, err = h.restore(ctx, roomID)
		if err != nil {
			h.report(connID, err)
			return err
		}
	}
	if r == nil {
		h.report(connID, ErrRoomNotFound)
		return ErrRoomNotFound
	}
	h.leaveCurrent(ctx, connID, r.ID())
	return h.roomCall(connID, r.AttachHost(ctx, connID))
}

func (h *Hub) restore(ctx context.Context, roomID string) (*room.Room, error) {
	snap, err := h.store.Load(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		h.log.Warn("load snapshot failed", zap.String("room_id", roomID), zap.Error(err))
		return nil, ErrRoomNotFound
	}
	r, err := h.adoptRoom(ctx, snap)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// act routes game actions and CloseRoom to the connection's room.
func (h *Hub) act(ctx context.Context, connID string, m types.ClientMessage) error {
	b, ok := h.idx.Lookup(connID)
	if !ok {
		h.report(connID, room.ErrNotJoined)
		return room.ErrNotJoined
	}
	r, err := h.RoomByID(ctx, b.RoomID)
	if err != nil {
		h.report(connID, err)
		return err
	}
	if r == nil {
		h.report(connID, ErrRoomNotFound)
		return ErrRoomNotFound
	}
	return h.roomCall(connID, r.Act(ctx, connID, m))
}

// leaveCurrent does a full leave of the connection's room when it differs from keep.
func (h *Hub) leaveCurrent(ctx context.Context, connID, keep string) {
	b, ok := h.idx.Lookup(connID)
	if !ok || b.RoomID == keep {
		return
	}
	if r, err := h.RoomByID(ctx, b.RoomID); err == nil && r != nil {
		if err := r.Leave(ctx, connID, ""); err != nil {
			h.log.Warn("leave before switching rooms failed", zap.String("conn_id", connID), zap.Error(err))
		}
	}
	h.idx.Unbind(connID)
}

// roomCall reports errors the room never got to see; the room reports its own.
func (h *Hub) roomCall(connID string, err error) error {
	if errors.Is(err, room.ErrRoomClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		h.report(connID, err)
	}
	return err
}

func (h *Hub) report(connID string, err error) {
	c, ok := h.idx.Conn(connID)
	if !ok || !c.Ready() {
		return
	}
	data, encErr := types.Encode(types.Error(CodeOf(err), err.Error()))
	if encErr != nil {
		h.log.Error("dropping invalid error message", zap.Error(encErr))
		return
	}
	if sendErr := c.Send(data); sendErr != nil {
		h.log.Warn("send failed", zap.String("conn_id", connID), zap.Error(sendErr))
	}
}
