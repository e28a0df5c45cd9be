// Package hub owns the registry of live rooms and routes every client message to the room
// its connection belongs to.
package hub

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/songline-backend/internal/engine"
	"github.com/DoyleJ11/songline-backend/internal/room"
	"github.com/DoyleJ11/songline-backend/internal/session"
	"github.com/DoyleJ11/songline-backend/internal/store"
)

var ErrHubStopped = errors.New("hub stopped")

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Mode  engine.Mode
	Reply chan createResult
}

type createResult struct {
	room *room.Room
	err  error
}

type GetRoom struct {
	Key   string
	Reply chan *room.Room
}

type GetRoomByID struct {
	ID    string
	Reply chan *room.Room
}

// AdoptRoom registers a room rebuilt from a snapshot, unless it is already live.
type AdoptRoom struct {
	Snapshot store.Snapshot
	Reply    chan *room.Room
}

type RemoveRoom struct {
	ID string
}

type ListRooms struct {
	Reply chan []*room.Room
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (GetRoomByID) isHubMsg() {}
func (AdoptRoom) isHubMsg()   {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Index  *session.Index
	Store  store.Store
	Logger *zap.Logger
	Clock  clockwork.Clock
}

type Hub struct {
	inbox chan HubMsg
	byID  map[string]*room.Room
	byKey map[string]*room.Room

	idx   *session.Index
	store store.Store
	log   *zap.Logger
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Hub {
	if opts.Index == nil {
		opts.Index = session.NewIndex()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Hub{
		inbox: make(chan HubMsg, 64),
		byID:  make(map[string]*room.Room),
		byKey: make(map[string]*room.Room),
		idx:   opts.Index,
		store: opts.Store,
		log:   opts.Logger,
		clock: opts.Clock,
		done:  make(chan struct{}),
	}
}

// Start runs the registry loop until ctx is cancelled or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	h.ctx, h.cancel = context.WithCancel(ctx)
	go h.loop()
}

// Stop shuts down every room and waits for the registry loop to exit. Snapshots are kept.
// A hub that was never started has nothing to stop.
func (h *Hub) Stop() {
	if h.ctx == nil {
		return
	}
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
	<-h.done
}

func (h *Hub) Index() *session.Index { return h.idx }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				r, err := h.create(msg.Mode)
				msg.Reply <- createResult{room: r, err: err}

			case GetRoom:
				msg.Reply <- h.byKey[msg.Key] // may be nil

			case GetRoomByID:
				msg.Reply <- h.byID[msg.ID]

			case AdoptRoom:
				msg.Reply <- h.adopt(msg.Snapshot)

			case RemoveRoom:
				if r := h.byID[msg.ID]; r != nil {
					delete(h.byID, msg.ID)
					delete(h.byKey, r.Key())
				}

			case ListRooms:
				rooms := make([]*room.Room, 0, len(h.byID))
				for _, r := range h.byID {
					rooms = append(rooms, r)
				}
				msg.Reply <- rooms

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(mode engine.Mode) (*room.Room, error) {
	key, err := h.uniqueKey()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	r := room.New(h.ctx, room.Config{ID: id, Key: key, Mode: mode, OnClosed: h.forget}, h.roomDeps())
	h.byID[id] = r
	h.byKey[key] = r
	h.log.Info("room created", zap.String("room_id", id), zap.String("room_key", key), zap.String("mode", string(mode)))
	return r, nil
}

func (h *Hub) adopt(snap store.Snapshot) *room.Room {
	if r := h.byID[snap.RoomID]; r != nil {
		return r
	}
	if _, taken := h.byKey[snap.RoomKey]; taken {
		// the key was reused while this room was offline
		key, err := h.uniqueKey()
		if err != nil {
			return nil
		}
		snap.RoomKey = key
	}
	r := room.Restore(h.ctx, snap, h.forget, h.roomDeps())
	h.byID[snap.RoomID] = r
	h.byKey[snap.RoomKey] = r
	h.log.Info("room restored", zap.String("room_id", snap.RoomID), zap.String("room_key", snap.RoomKey))
	return r
}

func (h *Hub) uniqueKey() (string, error) {
	for range maxKeyAttempts {
		key, err := GenerateKey()
		if err != nil {
			return "", err
		}
		if _, taken := h.byKey[key]; !taken {
			return key, nil
		}
		h.log.Debug("room key collision, regenerating")
	}
	return "", ErrKeySpaceExhausted
}

func (h *Hub) roomDeps() room.Deps {
	return room.Deps{Index: h.idx, Store: h.store, Logger: h.log, Clock: h.clock}
}

// forget runs on a room goroutine, so it must not wait on the registry loop.
func (h *Hub) forget(roomID string) {
	go func() {
		select {
		case h.inbox <- RemoveRoom{ID: roomID}:
		case <-h.done:
		}
	}()
}

func (h *Hub) shutdown() {
	for _, r := range h.byID {
		r.Shutdown()
	}
	clear(h.byID)
	clear(h.byKey)
	h.cancel()
}

func (h *Hub) ask(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func receive[T any](ctx context.Context, h *Hub, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, ErrHubStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) newRoom(ctx context.Context, mode engine.Mode) (*room.Room, error) {
	reply := make(chan createResult, 1)
	if err := h.ask(ctx, CreateRoom{Mode: mode, Reply: reply}); err != nil {
		return nil, err
	}
	res, err := receive(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	return res.room, res.err
}

// RoomByKey returns the live room for a key, or nil.
func (h *Hub) RoomByKey(ctx context.Context, key string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.ask(ctx, GetRoom{Key: NormalizeKey(key), Reply: reply}); err != nil {
		return nil, err
	}
	return receive(ctx, h, reply)
}

func (h *Hub) RoomByID(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.ask(ctx, GetRoomByID{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return receive(ctx, h, reply)
}

func (h *Hub) Rooms(ctx context.Context) ([]*room.Room, error) {
	reply := make(chan []*room.Room, 1)
	if err := h.ask(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	return receive(ctx, h, reply)
}

func (h *Hub) adoptRoom(ctx context.Context, snap store.Snapshot) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.ask(ctx, AdoptRoom{Snapshot: snap, Reply: reply}); err != nil {
		return nil, err
	}
	return receive(ctx, h, reply)
}
