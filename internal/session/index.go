// Package session tracks which transport connection belongs to which room and player.
//
// The index is the only state shared across rooms. Room actors write bindings for their own
// room; anything may read.
package session

import (
	"errors"
	"sync"

	"github.com/DoyleJ11/songline-backend/internal/engine"
)

var ErrSendFailed = errors.New("send failed")

// Conn is one live transport connection. Send must not block.
type Conn interface {
	ID() string
	Ready() bool
	Send(data []byte) error
}

type Binding struct {
	RoomID   string
	PlayerID engine.PlayerID // empty for a host that has not joined as a player
	Host     bool
}

type Index struct {
	mu       sync.RWMutex
	conns    map[string]Conn
	bindings map[string]Binding
	rooms    map[string]map[string]struct{}
	hosts    map[string]string
}

func NewIndex() *Index {
	return &Index{
		conns:    make(map[string]Conn),
		bindings: make(map[string]Binding),
		rooms:    make(map[string]map[string]struct{}),
		hosts:    make(map[string]string),
	}
}

// Attach registers a live connection that is not yet bound to any room.
func (x *Index) Attach(c Conn) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.conns[c.ID()] = c
}

// Detach forgets the connection entirely, returning the binding it had.
func (x *Index) Detach(connID string) (Binding, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	b, ok := x.unbindLocked(connID)
	delete(x.conns, connID)
	return b, ok
}

func (x *Index) Conn(connID string) (Conn, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.conns[connID]
	return c, ok
}

func (x *Index) Lookup(connID string) (Binding, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	b, ok := x.bindings[connID]
	return b, ok
}

// Bind points the connection at a player in a room. A connection maps to at most one
// player, so any previous binding is replaced. Host status survives when the room is the same.
func (x *Index) Bind(connID, roomID string, playerID engine.PlayerID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	host := false
	if prev, ok := x.bindings[connID]; ok {
		host = prev.Host && prev.RoomID == roomID
		if prev.RoomID != roomID {
			x.unbindLocked(connID)
		}
	}
	x.bindLocked(connID, Binding{RoomID: roomID, PlayerID: playerID, Host: host})
}

// BindHost makes the connection the host device of the room, replacing any previous host.
func (x *Index) BindHost(connID, roomID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if prev, ok := x.hosts[roomID]; ok && prev != connID {
		if b, ok := x.bindings[prev]; ok {
			b.Host = false
			if b.PlayerID == "" {
				x.unbindLocked(prev)
			} else {
				x.bindings[prev] = b
			}
		}
	}
	b := Binding{RoomID: roomID, Host: true}
	if prev, ok := x.bindings[connID]; ok {
		if prev.RoomID == roomID {
			b.PlayerID = prev.PlayerID
		} else {
			x.unbindLocked(connID)
		}
	}
	x.bindLocked(connID, b)
	x.hosts[roomID] = connID
}

// UnbindPlayer drops the player half of a binding, keeping the connection bound as host
// when it is one.
func (x *Index) UnbindPlayer(connID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	b, ok := x.bindings[connID]
	if !ok {
		return
	}
	if b.Host {
		b.PlayerID = ""
		x.bindings[connID] = b
		return
	}
	x.unbindLocked(connID)
}

func (x *Index) Unbind(connID string) (Binding, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.unbindLocked(connID)
}

// Connections is a snapshot of every live connection bound to the room.
func (x *Index) Connections(roomID string) []Conn {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Conn, 0, len(x.rooms[roomID]))
	for id := range x.rooms[roomID] {
		if c, ok := x.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (x *Index) Host(roomID string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.hosts[roomID]
	return id, ok
}

// DropRoom unbinds every connection of the room and returns their ids.
func (x *Index) DropRoom(roomID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := make([]string, 0, len(x.rooms[roomID]))
	for id := range x.rooms[roomID] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		x.unbindLocked(id)
	}
	delete(x.rooms, roomID)
	delete(x.hosts, roomID)
	return ids
}

func (x *Index) bindLocked(connID string, b Binding) {
	x.bindings[connID] = b
	if x.rooms[b.RoomID] == nil {
		x.rooms[b.RoomID] = make(map[string]struct{})
	}
	x.rooms[b.RoomID][connID] = struct{}{}
}

func (x *Index) unbindLocked(connID string) (Binding, bool) {
	b, ok := x.bindings[connID]
	if !ok {
		return Binding{}, false
	}
	delete(x.bindings, connID)
	if set := x.rooms[b.RoomID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(x.rooms, b.RoomID)
		}
	}
	if x.hosts[b.RoomID] == connID {
		delete(x.hosts, b.RoomID)
	}
	return b, true
}
