// Package reaper periodically evicts players who never came back and deletes rooms nobody is
// using. It only talks to rooms through their inboxes.
package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/songline-backend/internal/room"
)

// roomTimeout bounds how long one room may hold up a sweep.
const roomTimeout = 5 * time.Second

type Config struct {
	DisconnectSweepInterval time.Duration
	DisconnectTimeout       time.Duration
	EmptyRoomSweepInterval  time.Duration
	EmptyRoomMaxAge         time.Duration
}

func DefaultConfig() Config {
	return Config{
		DisconnectSweepInterval: 5 * time.Minute,
		DisconnectTimeout:       10 * time.Minute,
		EmptyRoomSweepInterval:  5 * time.Minute,
		EmptyRoomMaxAge:         30 * time.Minute,
	}
}

type RoomLister interface {
	Rooms(ctx context.Context) ([]*room.Room, error)
}

type Reaper struct {
	rooms RoomLister
	cfg   Config
	clock clockwork.Clock
	log   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(rooms RoomLister, cfg Config, clock clockwork.Clock, logger *zap.Logger) *Reaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{rooms: rooms, cfg: cfg, clock: clock, log: logger.Named("reaper")}
}

// Start launches both sweeps on their own tickers.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)
	r.group.Go(func() error {
		return r.every(ctx, r.cfg.DisconnectSweepInterval, func(ctx context.Context) { r.SweepDisconnected(ctx) })
	})
	r.group.Go(func() error {
		return r.every(ctx, r.cfg.EmptyRoomSweepInterval, func(ctx context.Context) { r.SweepEmptyRooms(ctx) })
	})
}

func (r *Reaper) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	err := r.group.Wait()
	r.cancel = nil
	return err
}

func (r *Reaper) every(ctx context.Context, interval time.Duration, sweep func(context.Context)) error {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			sweep(ctx)
		}
	}
}

// SweepDisconnected evicts long-gone players from rooms still in the lobby and returns how
// many were removed. A room that fails is logged and skipped.
func (r *Reaper) SweepDisconnected(ctx context.Context) int {
	rooms, err := r.rooms.Rooms(ctx)
	if err != nil {
		r.log.Warn("list rooms failed", zap.Error(err))
		return 0
	}
	total := 0
	for _, rm := range rooms {
		rctx, cancel := context.WithTimeout(ctx, roomTimeout)
		n, err := rm.Sweep(rctx, r.clock.Now(), r.cfg.DisconnectTimeout)
		cancel()
		if err != nil {
			r.log.Warn("disconnect sweep failed", zap.String("room_id", rm.ID()), zap.Error(err))
			continue
		}
		total += n
	}
	if total > 0 {
		r.log.Info("disconnect sweep", zap.Int("evicted", total))
	}
	return total
}

// SweepEmptyRooms deletes rooms with no players that are older than the max age, whatever
// their status, and returns how many were deleted.
func (r *Reaper) SweepEmptyRooms(ctx context.Context) int {
	rooms, err := r.rooms.Rooms(ctx)
	if err != nil {
		r.log.Warn("list rooms failed", zap.Error(err))
		return 0
	}
	closed := 0
	for _, rm := range rooms {
		rctx, cancel := context.WithTimeout(ctx, roomTimeout)
		ok, err := rm.CloseIfEmpty(rctx, r.clock.Now(), r.cfg.EmptyRoomMaxAge)
		cancel()
		if err != nil {
			r.log.Warn("empty room sweep failed", zap.String("room_id", rm.ID()), zap.Error(err))
			continue
		}
		if ok {
			closed++
		}
	}
	if closed > 0 {
		r.log.Info("empty room sweep", zap.Int("closed", closed))
	}
	return closed
}
