package webhook

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/util"
	"github.com/jmoiron/sqlx"
)

// memQueue is an in-memory WebhookQueueRepository with the same claim semantics.
type memQueue struct {
	mu   sync.Mutex
	rows map[string]*model.WebhookCallQueueEntry

	lostClaims map[string]bool // ids whose next outcome write reports ErrClaimLost
}

func newMemQueue(entries ...model.WebhookCallQueueEntry) *memQueue {
	q := &memQueue{rows: map[string]*model.WebhookCallQueueEntry{}, lostClaims: map[string]bool{}}
	for i := range entries {
		e := entries[i]
		q.rows[e.ID] = &e
	}
	return q
}

func (q *memQueue) get(id string) model.WebhookCallQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.rows[id]
}

func (q *memQueue) Insert(_ context.Context, _ *sqlx.Tx, e model.WebhookCallQueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rows[e.ID] = &e
	return nil
}

func (q *memQueue) ClaimDue(_ context.Context, limit int, now time.Time, lease time.Duration) ([]model.WebhookCallQueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*model.WebhookCallQueueEntry
	for _, e := range q.rows {
		if e.Status == model.WebhookPending && !e.ScheduledFor.After(now) && e.Attempts < e.MaxAttempts {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	token := util.NewAt(now)
	out := make([]model.WebhookCallQueueEntry, 0, len(due))
	for _, e := range due {
		tok := token
		e.ClaimToken = &tok
		e.ScheduledFor = now.Add(lease)
		out = append(out, *e)
	}
	return out, nil
}

func (q *memQueue) owned(e model.WebhookCallQueueEntry) (*model.WebhookCallQueueEntry, error) {
	if q.lostClaims[e.ID] {
		delete(q.lostClaims, e.ID)
		return nil, repository.ErrClaimLost
	}
	row, ok := q.rows[e.ID]
	if !ok || row.Status != model.WebhookPending || row.ClaimToken == nil || e.ClaimToken == nil || *row.ClaimToken != *e.ClaimToken {
		return nil, repository.ErrClaimLost
	}
	return row, nil
}

func (q *memQueue) MarkSent(_ context.Context, e model.WebhookCallQueueEntry, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	row, err := q.owned(e)
	if err != nil {
		return err
	}
	row.Status = model.WebhookSent
	row.Attempts = e.Attempts
	row.SentAt = &at
	row.LastAttemptAt = &at
	row.ErrorMessage = nil
	row.ClaimToken = nil
	return nil
}

func (q *memQueue) MarkRetry(_ context.Context, e model.WebhookCallQueueEntry, at time.Time, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	row, err := q.owned(e)
	if err != nil {
		return err
	}
	row.Attempts = e.Attempts
	row.LastAttemptAt = &at
	row.ScheduledFor = e.ScheduledFor
	row.ErrorMessage = &errMsg
	row.ClaimToken = nil
	return nil
}

func (q *memQueue) MarkFailed(_ context.Context, e model.WebhookCallQueueEntry, at time.Time, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	row, err := q.owned(e)
	if err != nil {
		return err
	}
	row.Status = model.WebhookFailed
	row.Attempts = e.Attempts
	row.LastAttemptAt = &at
	row.ScheduledFor = e.ScheduledFor
	row.ErrorMessage = &errMsg
	row.ClaimToken = nil
	return nil
}

func (q *memQueue) Release(_ context.Context, e model.WebhookCallQueueEntry, _, next time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	row, err := q.owned(e)
	if err != nil {
		return err
	}
	row.ScheduledFor = next
	row.ClaimToken = nil
	return nil
}

func (q *memQueue) GetByID(_ context.Context, id string) (*model.WebhookCallQueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// pending reports how many rows are still Pending and the earliest time one becomes due.
func (q *memQueue) pending() (int, time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int
	var next time.Time
	for _, e := range q.rows {
		if e.Status != model.WebhookPending {
			continue
		}
		n++
		if next.IsZero() || e.ScheduledFor.Before(next) {
			next = e.ScheduledFor
		}
	}
	return n, next
}

// scriptedSender returns the queued results in order, then nil.
type scriptedSender struct {
	mu      sync.Mutex
	results []error
	calls   []string
}

func (s *scriptedSender) Send(_ context.Context, url string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	if len(s.results) == 0 {
		return nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

type alwaysFail struct{ err error }

func (a alwaysFail) Send(context.Context, string, []byte) error { return a.err }

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// slowSender spends 3s of the shared clock per POST and counts deliveries per URL.
// after runs once each send completes.
type slowSender struct {
	clock *manualClock
	log   *deliveryLog
	after func()
}

func (s *slowSender) Send(_ context.Context, url string, _ []byte) error {
	s.clock.Set(s.clock.Now().Add(3 * time.Second))
	s.log.add(url)
	if s.after != nil {
		s.after()
	}
	return nil
}

type deliveryLog struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *deliveryLog) add(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[url]++
}

func (l *deliveryLog) snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}
