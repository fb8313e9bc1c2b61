package querycache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "match:warm:"
	scanBatch = 200
)

// Redis is a Cache shared by every replica. Marks are plain keys with a TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis returns a Redis cache whose marks live for ttl.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) IsWarm(ctx context.Context, signature string) (bool, error) {
	n, err := r.rdb.Exists(ctx, keyPrefix+signature).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) MarkWarm(ctx context.Context, signature string) error {
	if r.ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, keyPrefix+signature, 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, signature string) error {
	if err := r.rdb.Del(ctx, keyPrefix+signature).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Flush deletes every warm mark with SCAN + DEL; other keys are untouched.
func (r *Redis) Flush(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanBatch {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) > 0 {
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}
