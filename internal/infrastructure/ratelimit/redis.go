package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "critique:ratelimit:"

// RedisLimiter is a fixed-window counter shared by every instance using the
// same Redis database.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter connects to addr and verifies the connection.
func NewRedisLimiter(ctx context.Context, opts *redis.Options, limit int, window time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLimiterWithClient(client, "", limit, window), nil
}

// NewRedisLimiterWithClient creates a limiter over an existing client.
func NewRedisLimiterWithClient(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

// Allow increments the counter of key's current window.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	bucket := r.now().UnixNano() / int64(r.window)
	redisKey := r.keyPrefix + key + ":" + strconv.FormatInt(bucket, 10)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= r.limit, Limit: r.limit, Remaining: remaining}, nil
}

// Close closes the Redis client.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
