// Package store persists one snapshot per room so a host can recover a room after a restart.
// Saves are best effort: callers log failures and keep the in-memory room as the truth.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/songline-backend/internal/engine"
)

var ErrNotFound = errors.New("room snapshot not found")

type Member struct {
	PlayerID       engine.PlayerID `json:"playerId"`
	Name           string          `json:"name"`
	Avatar         string          `json:"avatar"`
	JoinedAt       time.Time       `json:"joinedAt"`
	DisconnectedAt *time.Time      `json:"disconnectedAt,omitempty"`
}

type Snapshot struct {
	RoomID    string       `json:"roomId"`
	RoomKey   string       `json:"roomKey"`
	CreatedAt time.Time    `json:"createdAt"`
	Members   []Member     `json:"members"`
	Game      engine.State `json:"game"`
	Version   int          `json:"version"`
}

type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, roomID string) (Snapshot, error)
	Delete(ctx context.Context, roomID string) error
	Close() error
}

func encode(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", snap.RoomID, err)
	}
	return data, nil
}

func decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
