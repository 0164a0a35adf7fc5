package countstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "automod/count/"

// RedisCountStore keeps trigger counters in Redis so caps hold across
// processes. Hour and day buckets expire shortly after their period ends.
type RedisCountStore struct {
	client *redis.Client
}

// NewRedisCountStore connects to Redis using a redis:// URL and verifies the
// connection with a ping.
func NewRedisCountStore(ctx context.Context, redisURL string) (*RedisCountStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return &RedisCountStore{client: client}, nil
}

// GetCount returns the counter for the current period bucket.
func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	key := redisKeyPrefix + periodBucket(name, val, period, time.Now())
	count, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Increment bumps all period counters in one pipelined round-trip.
func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {
	now := time.Now()
	pipe := s.client.Pipeline()

	key := redisKeyPrefix + periodBucket(name, val, PeriodHour, now)
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Hour)

	key = redisKeyPrefix + periodBucket(name, val, PeriodDay, now)
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)

	// The total bucket never expires.
	pipe.Incr(ctx, redisKeyPrefix+periodBucket(name, val, PeriodTotal, now))

	_, err := pipe.Exec(ctx)
	return err
}
