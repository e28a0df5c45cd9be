package ws

import (
	"context"
	"sync"

	"github.com/DoyleJ11/songline-backend/internal/session"
)

const outboxSize = 32

// conn is the session.Conn for one websocket. Frames queue in a small outbox drained by the
// writer goroutine; a client that lets the outbox fill up is disconnected.
type conn struct {
	id   string
	kill context.CancelFunc

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

func newConn(id string, kill context.CancelFunc) *conn {
	return &conn{id: id, kill: kill, out: make(chan []byte, outboxSize)}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return session.ErrSendFailed
	}
	select {
	case c.out <- data:
		return nil
	default:
		c.kill()
		return session.ErrSendFailed
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}
