package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/songline-backend/internal/engine"
	"github.com/DoyleJ11/songline-backend/internal/hub"
)

const qrSize = 320

type playerSummary struct {
	ID        engine.PlayerID `json:"id"`
	Name      string          `json:"name"`
	Avatar    string          `json:"avatar"`
	Tokens    int             `json:"tokens"`
	Score     int             `json:"score"`
	Connected bool            `json:"connected"`
}

type roomSummary struct {
	RoomKey     string          `json:"roomKey"`
	Mode        engine.Mode     `json:"mode"`
	Status      engine.Status   `json:"status"`
	Version     int             `json:"version"`
	RoundNumber int             `json:"roundNumber"`
	Players     []playerSummary `json:"players"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RoomSummary serves a read-only view of a room for lobby screens and join pages.
func RoomSummary(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := h.RoomByKey(r.Context(), chi.URLParam(r, "key"))
		if err != nil {
			logger.Warn("room lookup failed", zap.Error(err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		v, err := rm.State(r.Context())
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		connected := make(map[engine.PlayerID]bool, len(v.Members))
		for _, m := range v.Members {
			connected[m.PlayerID] = m.Connected
		}
		out := roomSummary{
			RoomKey: v.Key,
			Mode:    v.State.Mode,
			Status:  v.State.Status,
			Version: v.Version,
			Players: make([]playerSummary, 0, len(v.State.Players)),
		}
		if len(v.State.Rounds) > 0 {
			out.RoundNumber = v.State.Rounds[v.State.CurrentRound].RoundNumber
		}
		for _, p := range v.State.Players {
			out.Players = append(out.Players, playerSummary{
				ID:        p.ID,
				Name:      p.Name,
				Avatar:    p.Avatar,
				Tokens:    p.Tokens,
				Score:     p.Score,
				Connected: connected[p.ID],
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// JoinQR renders a PNG QR code pointing players at the join page for a room.
func JoinQR(h *hub.Hub, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := hub.NormalizeKey(chi.URLParam(r, "key"))
		rm, err := h.RoomByKey(r.Context(), key)
		if err != nil || rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(joinURL(r, publicURL, key), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func joinURL(r *http.Request, publicURL, key string) string {
	base := strings.TrimSuffix(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + key
}
