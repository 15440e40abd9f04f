package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "wayfarer:session:"

// RedisBackend keeps one JSON document per session and relies on key
// expiry for eviction.
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (b *RedisBackend) Get(ctx context.Context, id string, _ time.Time) (*SessionState, error) {
	raw, err := b.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var st SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &st, nil
}

// CompareAndSwap uses WATCH/MULTI/EXEC: the transaction aborts if the key
// changes between the version check and the write.
func (b *RedisBackend) CompareAndSwap(ctx context.Context, next *SessionState, expected int64, expiresAt time.Time) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	ttl := expiresAt.Sub(next.UpdatedAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	key := redisKey(next.ID)

	err = b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expected != 0 {
				return ErrConcurrentModification
			}
		case err != nil:
			return err
		default:
			var stored struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(current, &stored); err != nil {
				return fmt.Errorf("decode session %s: %w", next.ID, err)
			}
			if stored.Version != expected {
				return ErrConcurrentModification
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConcurrentModification
	}
	return err
}

func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	return b.rdb.Del(ctx, redisKey(id)).Err()
}

// DeleteExpired is a no-op: Redis expires session keys itself.
func (b *RedisBackend) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
