// Package ratelimit provides per-team request ceilings behind a backend-agnostic
// Limiter. The memory backend is process-local: several gateway instances each keep
// their own windows, so the effective ceiling multiplies with the instance count.
// The Redis backends share state between instances.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is the replenishment period for a team's requests-per-minute quota.
const Window = time.Minute

const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendRedisGCRA = "redis_gcra"
)

// Result describes one consume attempt.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // until the next point is available; zero when allowed
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds (at least 1) for the Retry-After header.
func (r Result) RetryAfterSeconds() int {
	s := int(math.Ceil(r.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Limiter consumes one point for key against a per-minute limit.
type Limiter interface {
	Consume(ctx context.Context, key string, limit int) (Result, error)
}

type Options struct {
	Backend         string
	KeyPrefix       string
	CleanupInterval time.Duration
}

// New builds the configured backend. rdb may be nil for the memory backend.
func New(opts Options, rdb *redis.Client) (Limiter, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryLimiter(opts.CleanupInterval), nil
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("rate limit backend %q requires redis", opts.Backend)
		}
		return NewRedisLimiter(rdb, opts.KeyPrefix), nil
	case BackendRedisGCRA:
		if rdb == nil {
			return nil, fmt.Errorf("rate limit backend %q requires redis", opts.Backend)
		}
		return NewGCRALimiter(rdb, opts.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", opts.Backend)
	}
}
