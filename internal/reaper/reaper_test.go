package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/songline-backend/internal/engine"
	"github.com/DoyleJ11/songline-backend/internal/room"
	"github.com/DoyleJ11/songline-backend/internal/session"
	"github.com/DoyleJ11/songline-backend/internal/store"
)

type nopConn struct{ id string }

func (c nopConn) ID() string             { return c.id }
func (c nopConn) Ready() bool            { return true }
func (c nopConn) Send(data []byte) error { return nil }

type panicConn struct{ id string }

func (c panicConn) ID() string             { return c.id }
func (c panicConn) Ready() bool            { return true }
func (c panicConn) Send(data []byte) error { panic("send exploded") }

type staticRooms []*room.Room

func (s staticRooms) Rooms(context.Context) ([]*room.Room, error) { return s, nil }

type env struct {
	idx   *session.Index
	clock *clockwork.FakeClock
	deps  room.Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	idx := session.NewIndex()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	return &env{
		idx:   idx,
		clock: clock,
		deps:  room.Deps{Index: idx, Store: store.NewMemory(), Logger: zap.NewNop(), Clock: clock},
	}
}

func (e *env) room(t *testing.T, id string) *room.Room {
	t.Helper()
	r := room.New(context.Background(), room.Config{ID: id, Key: id, Mode: engine.ModeOriginal}, e.deps)
	t.Cleanup(r.Shutdown)
	return r
}

// withGonePlayer joins a player to r and then drops their connection.
func (e *env) withGonePlayer(t *testing.T, r *room.Room, connID string) {
	t.Helper()
	ctx := context.Background()
	e.idx.Attach(nopConn{id: connID})
	require.NoError(t, r.Join(ctx, connID, connID, "avatar"))
	require.NoError(t, r.Disconnect(ctx, connID))
}

func players(t *testing.T, r *room.Room) int {
	t.Helper()
	v, err := r.State(context.Background())
	require.NoError(t, err)
	return len(v.State.Players)
}

func TestSweepDisconnected_SkipsFailingRooms(t *testing.T) {
	e := newEnv(t)
	gone := e.room(t, "GONE01")
	gone.Shutdown()
	live := e.room(t, "LIVE01")
	e.withGonePlayer(t, live, "c1")

	rp := New(staticRooms{gone, live}, DefaultConfig(), e.clock, zap.NewNop())
	ctx := context.Background()

	e.clock.Advance(9 * time.Minute)
	assert.Zero(t, rp.SweepDisconnected(ctx))
	assert.Equal(t, 1, players(t, live))

	e.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, rp.SweepDisconnected(ctx))
	assert.Zero(t, players(t, live))
}

func TestSweepDisconnected_RoomPanicsDuringBroadcast(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	broken := e.room(t, "BROKE1")
	e.withGonePlayer(t, broken, "c1")
	e.idx.Attach(panicConn{id: "host"})
	require.ErrorIs(t, broken.AttachHost(ctx, "host"), room.ErrInternal)

	live := e.room(t, "LIVE02")
	e.withGonePlayer(t, live, "c2")

	rp := New(staticRooms{broken, live}, DefaultConfig(), e.clock, zap.NewNop())
	e.clock.Advance(11 * time.Minute)

	done := make(chan int, 1)
	go func() { done <- rp.SweepDisconnected(ctx) }()
	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep stuck on the broken room")
	}
	assert.Zero(t, players(t, live))
}

func TestSweepEmptyRooms(t *testing.T) {
	e := newEnv(t)
	empty := e.room(t, "EMPTY1")
	busy := e.room(t, "BUSY01")
	e.idx.Attach(nopConn{id: "c1"})
	require.NoError(t, busy.Join(context.Background(), "c1", "Ann", "cat"))

	rp := New(staticRooms{empty, busy}, DefaultConfig(), e.clock, zap.NewNop())
	ctx := context.Background()

	e.clock.Advance(20 * time.Minute)
	assert.Zero(t, rp.SweepEmptyRooms(ctx))

	e.clock.Advance(11 * time.Minute)
	assert.Equal(t, 1, rp.SweepEmptyRooms(ctx))

	select {
	case <-empty.Done():
	case <-time.After(time.Second):
		t.Fatal("empty room still running")
	}
	assert.Equal(t, 1, players(t, busy))
}

func TestReaper_SweepsOnTicker(t *testing.T) {
	e := newEnv(t)
	r := e.room(t, "TICK01")
	e.withGonePlayer(t, r, "c1")

	cfg := Config{
		DisconnectSweepInterval: time.Minute,
		DisconnectTimeout:       2 * time.Minute,
		EmptyRoomSweepInterval:  time.Hour,
		EmptyRoomMaxAge:         time.Hour,
	}
	rp := New(staticRooms{r}, cfg, e.clock, zap.NewNop())
	rp.Start(context.Background())
	defer func() { require.NoError(t, rp.Stop()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.clock.BlockUntilContext(ctx, 2))

	e.clock.Advance(3 * time.Minute)
	require.Eventually(t, func() bool { return players(t, r) == 0 }, time.Second, 10*time.Millisecond)
}
