package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters in the shared cache so multiple server instances
// throttle as one. Attempts are INCR on a key whose TTL is the window, and
// lockouts are a marker key whose TTL is the lockout, so every mutation is a
// single server-side command.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a shared-cache CounterStore.
func NewRedisStore(rdb *redis.Client) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("ratelimit: nil redis client")
	}
	return &RedisStore{rdb: rdb}, nil
}

func lockKey(key string) string { return key + ":lock" }

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

func (s *RedisStore) Count(ctx context.Context, key string) (int, error) {
	n, err := s.rdb.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *RedisStore) Lock(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Set(ctx, lockKey(key), 1, ttl).Err()
}

func (s *RedisStore) LockRemaining(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.TTL(ctx, lockKey(key)).Result()
	if err != nil {
		return 0, err
	}
	// TTL reports negative durations for absent keys and keys without
	// expiry; neither counts as locked.
	if d <= 0 {
		return 0, nil
	}
	return d, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key, lockKey(key)).Err()
}
