package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "songline:room:"

// Redis stores each snapshot as one JSON value that expires ttl after the last save.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Save(ctx context.Context, snap Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKeyPrefix+snap.RoomID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.RoomID, err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, roomID string) (Snapshot, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+roomID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot %s: %w", roomID, err)
	}
	return decode(data)
}

func (r *Redis) Delete(ctx context.Context, roomID string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+roomID).Err(); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", roomID, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
