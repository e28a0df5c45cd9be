package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/songline-backend/internal/engine"
	"github.com/DoyleJ11/songline-backend/internal/hub"
	"github.com/DoyleJ11/songline-backend/internal/session"
	"github.com/DoyleJ11/songline-backend/internal/types"
)

type nopConn struct{ id string }

func (c nopConn) ID() string             { return c.id }
func (c nopConn) Ready() bool            { return true }
func (c nopConn) Send(data []byte) error { return nil }

var _ session.Conn = nopConn{}

func setup(t *testing.T) (*hub.Hub, http.Handler, string) {
	t.Helper()
	h := hub.New(hub.Options{Logger: zap.NewNop(), Clock: clockwork.NewFakeClock()})
	h.Start(context.Background())
	t.Cleanup(h.Stop)

	ctx := context.Background()
	h.Attach(nopConn{id: "host"})
	require.NoError(t, h.CreateRoom(ctx, "host", engine.ModePro))
	b, ok := h.Index().Lookup("host")
	require.True(t, ok)
	rm, err := h.RoomByID(ctx, b.RoomID)
	require.NoError(t, err)

	h.Attach(nopConn{id: "p1"})
	require.NoError(t, h.Dispatch(ctx, "p1", types.ClientMessage{Type: types.MsgJoinRoom, RoomKey: rm.Key(), Name: "Ann", Avatar: "cat"}))

	return h, SetupRoutes(h, Options{Logger: zap.NewNop(), PublicURL: "https://songline.example/"}), rm.Key()
}

func TestHealthz(t *testing.T) {
	_, handler, _ := setup(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoomSummary(t *testing.T) {
	_, handler, key := setup(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/"+key, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got roomSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, key, got.RoomKey)
	assert.Equal(t, engine.ModePro, got.Mode)
	assert.Equal(t, engine.StatusLobby, got.Status)
	require.Len(t, got.Players, 1)
	assert.Equal(t, "Ann", got.Players[0].Name)
	assert.True(t, got.Players[0].Connected)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/NOPE99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinQR(t *testing.T) {
	_, handler, key := setup(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/"+key+"/qr", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/NOPE99/qr", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rooms/ABC123/qr", nil)
	r.Host = "party.local:8080"
	assert.Equal(t, "http://party.local:8080/join/ABC123", joinURL(r, "", "ABC123"))
	assert.Equal(t, "https://songline.example/join/ABC123", joinURL(r, "https://songline.example/", "ABC123"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://party.local:8080/join/ABC123", joinURL(r, "", "ABC123"))
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*"}, originPatterns([]string{"https://a.example", "*"}))
	assert.Equal(t, []string{"a.example", "localhost:5173"}, originPatterns([]string{"https://a.example", "http://localhost:5173"}))
}
