package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisLimiter shares fixed-window counters between gateway replicas.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    Clock
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, clock Clock) *RedisLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    clock,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	start := windowStart(l.now(), l.window)
	d := Decision{
		Limit:   l.limit,
		ResetAt: start.Add(l.window),
	}

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		k := redisKey(key, start, l.window)
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return d, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	if count > l.limit {
		return d, nil
	}

	d.Allowed = true
	d.Remaining = l.limit - count
	return d, nil
}

func redisKey(key string, start time.Time, window time.Duration) string {
	index := start.UnixNano() / int64(window)
	return redisKeyPrefix + key + ":" + strconv.FormatInt(index, 10)
}
