package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/config"
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/metrics"
	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize  = 50
	DefaultClaimLease = 60 * time.Second
	maxBackoffShift   = 20
)

// Result is the aggregate of one batch run.
type Result struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Skipped   int `json:"skipped,omitempty"`
}

// Backoff is the delay before retrying after the n-th failed attempt: 2^n seconds.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxBackoffShift {
		attempts = maxBackoffShift
	}
	return time.Duration(1<<uint(attempts)) * time.Second
}

// Dispatcher drains due webhook rows. Retries are driven solely by the persisted
// scheduled_for column; nothing is scheduled in memory between runs.
type Dispatcher struct {
	Queue      repository.WebhookQueueRepository
	Sender     Sender
	BatchSize  int
	ClaimLease time.Duration

	// BreakerThreshold is the number of consecutive failures per host before later rows
	// for that host are handed back without an attempt. Zero disables the breaker.
	BreakerThreshold int
	BreakerOpenFor   time.Duration

	// SendTimeout bounds a single POST. No send starts unless it can finish before
	// the batch's claim lease runs out.
	SendTimeout time.Duration

	now      func() time.Time
	mu       sync.Mutex
	breakers map[string]*HostBreaker
}

func NewDispatcher(queue repository.WebhookQueueRepository, sender Sender, batchSize int, lease time.Duration, breakerThreshold int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &Dispatcher{
		Queue:            queue,
		Sender:           sender,
		BatchSize:        batchSize,
		ClaimLease:       lease,
		BreakerThreshold: breakerThreshold,
		BreakerOpenFor:   lease / 2,
		now:              time.Now,
		breakers:         make(map[string]*HostBreaker),
	}
}

// NewDispatcherFromConfig wires a dispatcher posting through an HTTPSender. The claim
// lease is raised to cover a full batch of timed-out sends.
func NewDispatcherFromConfig(wc config.WebhookConfig, dc config.DispatcherConfig, queue repository.WebhookQueueRepository) *Dispatcher {
	sender := NewHTTPSender(wc.TimeoutMs, wc.UserAgent)
	d := NewDispatcher(queue, sender, dc.BatchSize, dc.ClaimLease, wc.BreakerThreshold)
	d.SendTimeout = sender.timeout

	if floor := time.Duration(d.BatchSize+1) * d.SendTimeout; d.ClaimLease < floor {
		logger.Log.Warn("claim lease shorter than a worst-case batch, raising it",
			zap.Duration("configured", d.ClaimLease),
			zap.Duration("lease", floor),
		)
		d.ClaimLease = floor
		d.BreakerOpenFor = floor / 2
	}
	return d
}

// ProcessQueue runs one batch. Per-row delivery failures are recorded on the rows and
// never returned; an error means the run itself could not proceed.
func (d *Dispatcher) ProcessQueue(ctx context.Context) (Result, error) {
	var res Result

	claimedAt := d.clock().UTC()
	entries, err := d.Queue.ClaimDue(ctx, d.BatchSize, claimedAt, d.ClaimLease)
	if err != nil {
		return res, fmt.Errorf("claim due webhooks: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}
	leaseEnd := claimedAt.Add(d.ClaimLease)

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			// unprocessed rows stay claimed and come back after the lease
			return res, err
		}

		if !d.clock().Add(d.SendTimeout).Before(leaseEnd) {
			// past this point another run may own the rows; they come back after the lease
			left := len(entries) - i
			res.Skipped += left
			metrics.WebhookDeliveries.WithLabelValues("skipped").Add(float64(left))
			logger.Log.Warn("claim lease exhausted, leaving rows for the next run",
				zap.Int("left", left),
				zap.Time("lease_end", leaseEnd),
			)
			break
		}

		br := d.breaker(e.WebhookURL)
		if br != nil && !br.Allow() {
			d.release(ctx, e, br.ReopensAt())
			res.Skipped++
			continue
		}

		d.deliver(ctx, e, br, &res)
	}

	logger.Log.Info("webhook batch processed",
		zap.Int("processed", res.Processed),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("retried", res.Retried),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (d *Dispatcher) deliver(ctx context.Context, e model.WebhookCallQueueEntry, br *HostBreaker, res *Result) {
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = model.DefaultWebhookMaxAttempts
	}

	start := d.clock()
	sendErr := d.Sender.Send(ctx, e.WebhookURL, e.Payload)
	metrics.WebhookDeliverySeconds.Observe(time.Since(start).Seconds())
	if sendErr != nil && ctx.Err() != nil {
		// shutting down: not the endpoint's fault, leave the row to the lease
		return
	}

	at := d.clock().UTC()
	e.Attempts++
	res.Processed++

	if sendErr == nil {
		if br != nil {
			br.Success()
		}
		res.Succeeded++
		metrics.WebhookDeliveries.WithLabelValues("sent").Inc()
		d.persist(e, d.Queue.MarkSent(ctx, e, at))
		return
	}

	if br != nil {
		br.Failure()
	}
	msg := ErrorMessage(sendErr)
	e.ScheduledFor = at.Add(Backoff(e.Attempts))

	if e.Attempts < e.MaxAttempts {
		res.Retried++
		metrics.WebhookDeliveries.WithLabelValues("retried").Inc()
		d.persist(e, d.Queue.MarkRetry(ctx, e, at, msg))
		return
	}

	res.Failed++
	metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
	logger.Log.Warn("webhook delivery exhausted",
		zap.String("id", e.ID),
		zap.String("team_id", e.TeamID),
		zap.Int("attempts", e.Attempts),
		zap.String("error", msg),
	)
	d.persist(e, d.Queue.MarkFailed(ctx, e, at, msg))
}

func (d *Dispatcher) release(ctx context.Context, e model.WebhookCallQueueEntry, next time.Time) {
	metrics.WebhookDeliveries.WithLabelValues("skipped").Inc()
	now := d.clock().UTC()
	if next.Before(now) {
		next = now
	}
	d.persist(e, d.Queue.Release(ctx, e, now, next.UTC()))
}

func (d *Dispatcher) persist(e model.WebhookCallQueueEntry, err error) {
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrClaimLost):
		logger.Log.Warn("webhook claim lost before outcome was stored", zap.String("id", e.ID))
	default:
		logger.Log.Error("store webhook outcome", zap.String("id", e.ID), zap.Error(err))
	}
}

// breaker returns the shared breaker for the URL's host, or nil when disabled.
func (d *Dispatcher) breaker(rawURL string) *HostBreaker {
	if d.BreakerThreshold <= 0 {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.breakers == nil {
		d.breakers = make(map[string]*HostBreaker)
	}
	br, ok := d.breakers[host]
	if !ok {
		br = NewHostBreaker(d.BreakerThreshold, d.BreakerOpenFor, d.clock)
		d.breakers[host] = br
	}
	return br
}

func (d *Dispatcher) clock() time.Time {
	if d.now == nil {
		return time.Now()
	}
	return d.now()
}
