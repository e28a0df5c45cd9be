package hub

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
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
	"github.com/DoyleJ11/songline-backend/internal/types"
)

const within = 200 * time.Millisecond

type fakeConn struct {
	id     string
	frames chan []byte
}

func (c *fakeConn) ID() string  { return c.id }
func (c *fakeConn) Ready() bool { return true }
func (c *fakeConn) Send(data []byte) error {
	select {
	case c.frames <- data:
		return nil
	default:
		return session.ErrSendFailed
	}
}

func recvType(t *testing.T, c *fakeConn, want string) types.ServerMessage {
	t.Helper()
	select {
	case data := <-c.frames:
		var m types.ServerMessage
		require.NoError(t, json.Unmarshal(data, &m))
		require.Equal(t, want, m.Type, "message %s", data)
		return m
	case <-time.After(within):
		t.Fatalf("%s: timed out waiting for %s", c.id, want)
		return types.ServerMessage{}
	}
}

func startHub(t *testing.T, st store.Store) *Hub {
	t.Helper()
	h := New(Options{Store: st, Logger: zap.NewNop(), Clock: clockwork.NewFakeClock()})
	h.Start(context.Background())
	t.Cleanup(h.Stop)
	return h
}

func connect(h *Hub, id string) *fakeConn {
	c := &fakeConn{id: id, frames: make(chan []byte, 64)}
	h.Attach(c)
	return c
}

// host creates a room and returns its key and id.
func host(t *testing.T, h *Hub, c *fakeConn) (string, string) {
	t.Helper()
	require.NoError(t, h.Dispatch(context.Background(), c.id, types.ClientMessage{Type: types.MsgCreateRoom}))
	created := recvType(t, c, types.MsgRoomCreated)
	recvType(t, c, types.MsgRoomState)
	return created.RoomKey, created.RoomID
}

func roomView(t *testing.T, h *Hub, id string) room.View {
	t.Helper()
	r, err := h.RoomByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, r)
	v, err := r.State(context.Background())
	require.NoError(t, err)
	return v
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := startHub(t, nil)
	ctx := context.Background()

	r1, err := h.newRoom(ctx, engine.ModeOriginal)
	require.NoError(t, err)

	r2, err := h.RoomByKey(ctx, r1.Key())
	require.NoError(t, err)
	r3, err := h.RoomByID(ctx, r1.ID())
	require.NoError(t, err)

	assert.Same(t, r1, r2)
	assert.Same(t, r1, r3)

	missing, err := h.RoomByKey(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHub_StopBeforeStart(t *testing.T) {
	h := New(Options{Logger: zap.NewNop()})

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a hub that never started")
	}
}

func TestHub_CreateRoom(t *testing.T) {
	h := startHub(t, nil)
	c := connect(h, "host")

	key, id := host(t, h, c)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), key)
	assert.NotEmpty(t, id)

	b, ok := h.Index().Lookup("host")
	require.True(t, ok)
	assert.True(t, b.Host)
	assert.Equal(t, id, b.RoomID)

	err := h.Dispatch(context.Background(), "host", types.ClientMessage{Type: types.MsgCreateRoom, Mode: "speedrun"})
	assert.ErrorIs(t, err, ErrBadRequest)
	e := recvType(t, c, types.MsgError)
	assert.Equal(t, CodeBadRequest, e.Code)
}

func TestHub_JoinRoom(t *testing.T) {
	h := startHub(t, nil)
	ctx := context.Background()
	hc := connect(h, "host")
	key, id := host(t, h, hc)

	t.Run("unknown key", func(t *testing.T) {
		p := connect(h, "lost")
		err := h.Dispatch(ctx, "lost", types.ClientMessage{Type: types.MsgJoinRoom, RoomKey: "ZZZZZZ", Name: "Ann"})
		assert.ErrorIs(t, err, ErrRoomNotFound)
		e := recvType(t, p, types.MsgError)
		assert.Equal(t, CodeRoomNotFound, e.Code)
	})

	t.Run("key is case-insensitive", func(t *testing.T) {
		p := connect(h, "p1")
		lower := " " + strings.ToLower(key)
		require.NoError(t, h.Dispatch(ctx, "p1", types.ClientMessage{Type: types.MsgJoinRoom, RoomKey: lower, Name: "Ann", Avatar: "cat"}))
		joined := recvType(t, p, types.MsgJoined)
		assert.Equal(t, key, joined.RoomKey)
		st := recvType(t, hc, types.MsgRoomState)
		assert.Len(t, st.Game.Players, 1)
	})

	assert.Len(t, roomView(t, h, id).State.Players, 1)
}

func TestHub_JoinOtherRoomLeavesFirst(t *testing.T) {
	h := startHub(t, nil)
	ctx := context.Background()
	keyA, idA := host(t, h, connect(h, "hostA"))
	keyB, idB := host(t, h, connect(h, "hostB"))
	p := connect(h, "p1")

	require.NoError(t, h.JoinRoom(ctx, "p1", keyA, "Ann", "cat"))
	recvType(t, p, types.MsgJoined)
	recvType(t, p, types.MsgRoomState)

	require.NoError(t, h.JoinRoom(ctx, "p1", keyB, "Ann", "cat"))

	assert.Empty(t, roomView(t, h, idA).State.Players)
	assert.Len(t, roomView(t, h, idB).State.Players, 1)
	b, ok := h.Index().Lookup("p1")
	require.True(t, ok)
	assert.Equal(t, idB, b.RoomID)
}

func TestHub_DisconnectThenRejoinKeepsPlayer(t *testing.T) {
	h := startHub(t, nil)
	ctx := context.Background()
	key, id := host(t, h, connect(h, "host"))
	p := connect(h, "p1")

	require.NoError(t, h.JoinRoom(ctx, "p1", key, "Ann", "cat"))
	ann := recvType(t, p, types.MsgJoined).PlayerID

	h.Disconnect(ctx, "p1")
	_, ok := h.Index().Conn("p1")
	assert.False(t, ok)
	v := roomView(t, h, id)
	require.Len(t, v.Members, 1)
	assert.False(t, v.Members[0].Connected)

	// a second disconnect for the same connection is harmless
	h.Disconnect(ctx, "p1")

	again := connect(h, "p1-again")
	require.NoError(t, h.JoinRoom(ctx, "p1-again", key, "Ann", "cat"))
	assert.Equal(t, ann, recvType(t, again, types.MsgJoined).PlayerID)

	v = roomView(t, h, id)
	assert.Len(t, v.State.Players, 1)
	assert.True(t, v.Members[0].Connected)
}

func TestHub_ActionsNeedARoom(t *testing.T) {
	h := startHub(t, nil)
	c := connect(h, "drifter")

	err := h.Dispatch(context.Background(), "drifter", types.ClientMessage{Type: types.MsgReveal, Year: new(int)})
	assert.ErrorIs(t, err, room.ErrNotJoined)
	e := recvType(t, c, types.MsgError)
	assert.Equal(t, room.CodeNotJoined, e.Code)

	// leaving without a room is silent
	require.NoError(t, h.Dispatch(context.Background(), "drifter", types.ClientMessage{Type: types.MsgLeave}))
}

func TestHub_CloseRoomUnregisters(t *testing.T) {
	h := startHub(t, nil)
	ctx := context.Background()
	hc := connect(h, "host")
	key, _ := host(t, h, hc)

	require.NoError(t, h.Dispatch(ctx, "host", types.ClientMessage{Type: types.MsgCloseRoom}))
	recvType(t, hc, types.MsgRoomClosed)

	require.Eventually(t, func() bool {
		r, err := h.RoomByKey(ctx, key)
		return err == nil && r == nil
	}, time.Second, 10*time.Millisecond)

	rooms, err := h.Rooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestHub_RejoinHostRestoresFromStore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	first := New(Options{Store: st, Logger: zap.NewNop(), Clock: clockwork.NewFakeClock()})
	first.Start(ctx)
	key, id := host(t, first, connect(first, "host"))
	p := &fakeConn{id: "p1", frames: make(chan []byte, 64)}
	first.Attach(p)
	require.NoError(t, first.JoinRoom(ctx, "p1", key, "Ann", "cat"))
	first.Stop()

	second := startHub(t, st)
	hc := connect(second, "host-2")
	require.NoError(t, second.Dispatch(ctx, "host-2", types.ClientMessage{Type: types.MsgRejoinHost, RoomID: id}))

	created := recvType(t, hc, types.MsgRoomCreated)
	assert.Equal(t, id, created.RoomID)
	assert.Equal(t, key, created.RoomKey)
	state := recvType(t, hc, types.MsgRoomState)
	require.Len(t, state.Roster, 1)
	assert.False(t, state.Roster[0].Connected)

	err := second.RejoinHost(ctx, "host-2", "no-such-room", "")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	recvType(t, hc, types.MsgError)
}

func TestGenerateKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{6}$`, key)
		seen[key] = true
	}
	assert.Greater(t, len(seen), 1)
	assert.Equal(t, "AB12CD", NormalizeKey("  ab12cd "))
}
