package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/contact-intake/internal/ratelimit"
)

// RedisCounterStore is a Redis implementation of ratelimit.CounterStore.
// INCR and PEXPIRE are atomic on the server, so every service instance
// sharing the Redis sees the same counters.
type RedisCounterStore struct {
	client redis.Cmdable
}

// NewRedisCounterStore creates a new Redis-backed counter store.
func NewRedisCounterStore(client redis.Cmdable) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (r *RedisCounterStore) Increment(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.PExpire(ctx, key, ttl).Err()
}

func (r *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.PTTL(ctx, key).Result()
}

func (r *RedisCounterStore) Count(ctx context.Context, key string) (int64, error) {
	count, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}

		return 0, err
	}

	return count, nil
}

var _ ratelimit.CounterStore = (*RedisCounterStore)(nil)
