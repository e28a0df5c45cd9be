package room

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/songline-backend/internal/session"
	"github.com/DoyleJ11/songline-backend/internal/types"
)

// broadcast sends the current RoomState to every connection in the room, plus any extra
// connections that just lost their binding and need to see why.
func (r *Room) broadcast(extra ...string) {
	msg := types.RoomState(r.key, r.version, r.roster(), r.state)
	data, err := types.Encode(msg)
	if err != nil {
		r.log.Error("dropping invalid room state", zap.Error(err))
		return
	}

	conns := r.idx.Connections(r.id)
	seen := make(map[string]bool, len(conns))
	for _, c := range conns {
		seen[c.ID()] = true
		r.deliver(c, data)
	}
	for _, id := range extra {
		if id == "" || seen[id] {
			continue
		}
		if c, ok := r.idx.Conn(id); ok {
			r.deliver(c, data)
		}
	}
}

func (r *Room) sendTo(connID string, msg types.ServerMessage) {
	c, ok := r.idx.Conn(connID)
	if !ok {
		return
	}
	r.send(c, msg)
}

func (r *Room) sendError(connID string, err error) {
	r.sendTo(connID, types.Error(CodeOf(err), err.Error()))
}

func (r *Room) send(c session.Conn, msg types.ServerMessage) {
	data, err := types.Encode(msg)
	if err != nil {
		r.log.Error("dropping invalid message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	r.deliver(c, data)
}

func (r *Room) deliver(c session.Conn, data []byte) {
	if !c.Ready() {
		return
	}
	if err := c.Send(data); err != nil {
		r.log.Warn("send failed", zap.String("conn_id", c.ID()), zap.Error(err))
	}
}
