package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter applies a fixed window shared by every gateway instance.
type RedisLimiter struct {
	rdb       *redis.Client
	keyPrefix string
	now       func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, keyPrefix string) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "rl:team:"
	}
	return &RedisLimiter{rdb: rdb, keyPrefix: keyPrefix, now: time.Now}
}

func (l *RedisLimiter) Consume(ctx context.Context, key string, limit int) (Result, error) {
	// fixed-window key: rl:team:{id}:{window_start_unix}
	now := l.now()
	windowStart := now.Truncate(Window)
	k := l.keyPrefix + key + ":" + strconv.FormatInt(windowStart.Unix(), 10)

	// INCR and set expiry 2*window (safety)
	pipe := l.rdb.Pipeline()
	cnt := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, Window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	if cnt.Val() > int64(limit) {
		return Result{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: windowStart.Add(Window).Sub(now),
		}, nil
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - int(cnt.Val())}, nil
}

// GCRALimiter smooths the per-minute quota with redis_rate's generic cell rate algorithm.
type GCRALimiter struct {
	limiter   *redis_rate.Limiter
	keyPrefix string
}

func NewGCRALimiter(rdb *redis.Client, keyPrefix string) *GCRALimiter {
	if keyPrefix == "" {
		keyPrefix = "rl:team:"
	}
	return &GCRALimiter{limiter: redis_rate.NewLimiter(rdb), keyPrefix: keyPrefix}
}

func (l *GCRALimiter) Consume(ctx context.Context, key string, limit int) (Result, error) {
	res, err := l.limiter.Allow(ctx, l.keyPrefix+key, redis_rate.PerMinute(limit))
	if err != nil {
		return Result{}, err
	}
	if res.Allowed == 0 {
		return Result{Allowed: false, Limit: limit, RetryAfter: res.RetryAfter}, nil
	}
	return Result{Allowed: true, Limit: limit, Remaining: res.Remaining}, nil
}
