package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window counter shared by every instance that uses
// the same Redis database
type RedisLimiter struct {
	redis  *redis.Client
	config Config
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are stored as
// "<prefix>:<key>".
func NewRedisLimiter(client *redis.Client, config Config, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow increments key's counter for the current window
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)
	limit := rl.config.capacity()

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, fmt.Errorf("redis error: %w", err)
	}

	// The first request of a window starts its expiry
	ttl := pttl.Val()
	if ttl <= 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.Window).Err(); err != nil {
			return Decision{Allowed: true, Limit: limit, Remaining: limit}, fmt.Errorf("redis error: %w", err)
		}
		ttl = rl.config.Window
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		Reset:     rl.now().Add(ttl),
	}, nil
}

// Reset clears the counter for key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Err()
}
