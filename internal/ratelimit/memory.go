package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowEntry tracks the current fixed window for a single key.
type windowEntry struct {
	start time.Time
	count int
}

// MemoryLimiter is a fixed-window counter per key. A key's window opens on its first
// request and lasts Window; buckets are created lazily.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewMemoryLimiter creates a limiter and starts its cleanup goroutine.
func NewMemoryLimiter(cleanupInterval time.Duration) *MemoryLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	l := &MemoryLimiter{
		entries:         make(map[string]*windowEntry),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *MemoryLimiter) Consume(_ context.Context, key string, limit int) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || !now.Before(e.start.Add(Window)) {
		e = &windowEntry{start: now}
		l.entries[key] = e
	}

	if e.count >= limit {
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: e.start.Add(Window).Sub(now),
		}, nil
	}

	e.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - e.count}, nil
}

// cleanup periodically drops windows that have already closed.
func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, e := range l.entries {
				if !now.Before(e.start.Add(Window)) {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
