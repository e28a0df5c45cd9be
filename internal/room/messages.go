package room

import (
	"context"
	"time"

	"github.com/DoyleJ11/songline-backend/internal/engine"
	"github.com/DoyleJ11/songline-backend/internal/types"
)

type Msg interface{ isRoomMsg() }

type replier interface{ reply(err error) }

// AttachHost binds a host device to the room and sends it the room identity.
type AttachHost struct {
	ConnID string
	Reply  chan error
}

type Join struct {
	ConnID string
	Name   string
	Avatar string
	Reply  chan error
}

type Leave struct {
	ConnID   string
	PlayerID engine.PlayerID // empty: the caller's own player
	Reply    chan error
}

// Disconnect reports a closed transport.
type Disconnect struct {
	ConnID string
	Reply  chan error
}

// Action carries a game command or CloseRoom from a client.
type Action struct {
	ConnID string
	Msg    types.ClientMessage
	Reply  chan error
}

type Sweep struct {
	Now     time.Time
	Timeout time.Duration
	Reply   chan int
}

type CloseIfEmpty struct {
	Now    time.Time
	MaxAge time.Duration
	Reply  chan bool
}

type Close struct {
	Reason string
	Reply  chan struct{}
}

type GetState struct {
	Reply chan View
}

// Shutdown stops the goroutine without deleting anything.
type Shutdown struct{}

func (AttachHost) isRoomMsg()   {}
func (Join) isRoomMsg()         {}
func (Leave) isRoomMsg()        {}
func (Disconnect) isRoomMsg()   {}
func (Action) isRoomMsg()       {}
func (Sweep) isRoomMsg()        {}
func (CloseIfEmpty) isRoomMsg() {}
func (Close) isRoomMsg()        {}
func (GetState) isRoomMsg()     {}
func (Shutdown) isRoomMsg()     {}

func (m AttachHost) reply(err error) { offer(m.Reply, err) }
func (m Join) reply(err error)       { offer(m.Reply, err) }
func (m Leave) reply(err error)      { offer(m.Reply, err) }
func (m Disconnect) reply(err error) { offer(m.Reply, err) }
func (m Action) reply(err error)     { offer(m.Reply, err) }

// abandon answers a message whose handler panicked so its caller is not left waiting.
func abandon(m Msg) {
	switch msg := m.(type) {
	case replier:
		msg.reply(ErrInternal)
	case Sweep:
		offer(msg.Reply, 0)
	case CloseIfEmpty:
		offer(msg.Reply, false)
	}
}

func offer[T any](ch chan T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}

func (r *Room) AttachHost(ctx context.Context, connID string) error {
	return r.call(ctx, func(reply chan error) Msg { return AttachHost{ConnID: connID, Reply: reply} })
}

func (r *Room) Join(ctx context.Context, connID, name, avatar string) error {
	return r.call(ctx, func(reply chan error) Msg {
		return Join{ConnID: connID, Name: name, Avatar: avatar, Reply: reply}
	})
}

func (r *Room) Leave(ctx context.Context, connID string, playerID engine.PlayerID) error {
	return r.call(ctx, func(reply chan error) Msg { return Leave{ConnID: connID, PlayerID: playerID, Reply: reply} })
}

func (r *Room) Disconnect(ctx context.Context, connID string) error {
	return r.call(ctx, func(reply chan error) Msg { return Disconnect{ConnID: connID, Reply: reply} })
}

func (r *Room) Act(ctx context.Context, connID string, m types.ClientMessage) error {
	return r.call(ctx, func(reply chan error) Msg { return Action{ConnID: connID, Msg: m, Reply: reply} })
}

func (r *Room) Sweep(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	reply := make(chan int, 1)
	if err := r.enqueue(ctx, Sweep{Now: now, Timeout: timeout, Reply: reply}); err != nil {
		return 0, err
	}
	return await(ctx, r, reply)
}

func (r *Room) CloseIfEmpty(ctx context.Context, now time.Time, maxAge time.Duration) (bool, error) {
	reply := make(chan bool, 1)
	if err := r.enqueue(ctx, CloseIfEmpty{Now: now, MaxAge: maxAge, Reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, r, reply)
}

func (r *Room) Close(ctx context.Context, reason string) error {
	reply := make(chan struct{})
	if err := r.enqueue(ctx, Close{Reason: reason, Reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.enqueue(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, r, reply)
}

// Shutdown stops the room and waits for its goroutine to exit.
func (r *Room) Shutdown() {
	r.cancel()
	<-r.done
}

func (r *Room) call(ctx context.Context, build func(chan error) Msg) error {
	reply := make(chan error, 1)
	if err := r.enqueue(ctx, build(reply)); err != nil {
		return err
	}
	err, waitErr := await(ctx, r, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (r *Room) enqueue(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, r *Room, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		// the room may have answered just before exiting
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrRoomClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
