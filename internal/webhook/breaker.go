package webhook

import (
	"sync"
	"time"
)

// HostBreaker stops a dispatcher run from hammering a webhook host that keeps
// failing. After threshold consecutive failures it refuses attempts until cooldown
// has passed, then admits one trial request whose outcome closes or re-opens it.
type HostBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures  int
	tripped   bool
	probing   bool
	reopensAt time.Time
}

func NewHostBreaker(threshold int, cooldown time.Duration, now func() time.Time) *HostBreaker {
	if now == nil {
		now = time.Now
	}
	return &HostBreaker{threshold: threshold, cooldown: cooldown, now: now}
}

// Allow reports whether a delivery to the host may be attempted now.
func (b *HostBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tripped {
		return true
	}
	if b.probing || b.now().Before(b.reopensAt) {
		return false
	}
	b.probing = true
	return true
}

// ReopensAt is when a tripped breaker will admit its trial request.
func (b *HostBreaker) ReopensAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reopensAt
}

func (b *HostBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.tripped = false
	b.probing = false
}

func (b *HostBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.probing || b.failures >= b.threshold {
		b.tripped = true
		b.probing = false
		b.reopensAt = b.now().Add(b.cooldown)
	}
}
