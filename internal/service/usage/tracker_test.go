package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/kafka"
	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/webhook"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// store backs the fakes; txRunner serializes transactions and restores a snapshot
// when fn fails, the way a rolled-back MySQL transaction would.
type store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	subs      map[string]model.Subscription
	queue     []model.WebhookCallQueueEntry
	insertErr error
}

func (s *store) InTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	subs := make(map[string]model.Subscription, len(s.subs))
	for k, v := range s.subs {
		subs[k] = v
	}
	queue := append([]model.WebhookCallQueueEntry(nil), s.queue...)
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.subs, s.queue = subs, queue
		s.mu.Unlock()
		return err
	}
	return nil
}

type fakeSubs struct{ *store }

func (f fakeSubs) FindActive(context.Context, string, string, string) (*model.Subscription, error) {
	return nil, nil
}

func (f fakeSubs) GetByID(_ context.Context, id string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f fakeSubs) IncrementUsage(_ context.Context, id string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.RequestsConsumed++
	f.subs[id] = s
	return &s, nil
}

func (f fakeSubs) MarkNotified(_ context.Context, _ *sqlx.Tx, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.subs[id]
	if s.NotifiedAt90PercentUse != nil {
		return false, nil
	}
	s.NotifiedAt90PercentUse = &at
	f.subs[id] = s
	return true, nil
}

func (f fakeSubs) Insert(_ context.Context, s model.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[s.ID] = s
	return nil
}

type fakeQueue struct{ *store }

func (f fakeQueue) Insert(_ context.Context, _ *sqlx.Tx, e model.WebhookCallQueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.queue = append(f.queue, e)
	return nil
}

func (f fakeQueue) ClaimDue(context.Context, int, time.Time, time.Duration) ([]model.WebhookCallQueueEntry, error) {
	return nil, nil
}
func (f fakeQueue) MarkSent(context.Context, model.WebhookCallQueueEntry, time.Time) error { return nil }
func (f fakeQueue) MarkRetry(context.Context, model.WebhookCallQueueEntry, time.Time, string) error {
	return nil
}
func (f fakeQueue) MarkFailed(context.Context, model.WebhookCallQueueEntry, time.Time, string) error {
	return nil
}
func (f fakeQueue) Release(context.Context, model.WebhookCallQueueEntry, time.Time, time.Time) error {
	return nil
}
func (f fakeQueue) GetByID(context.Context, string) (*model.WebhookCallQueueEntry, error) {
	return nil, nil
}

type fakeTeams map[string]model.Team

func (f fakeTeams) GetByID(_ context.Context, id string) (*model.Team, error) {
	t, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f fakeTeams) GetAllowedDomains(_ context.Context, id string) (model.StringList, bool, error) {
	t, ok := f[id]
	return t.AllowedDomains, ok, nil
}

func (f fakeTeams) Upsert(context.Context, model.Team) error { return nil }

type recordingNotifier struct {
	mu       sync.Mutex
	triggers []kafka.DispatchTrigger
	err      error
}

func (n *recordingNotifier) PublishDispatch(_ context.Context, t kafka.DispatchTrigger) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.triggers = append(n.triggers, t)
	return n.err
}

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, consumed, max int64, webhookURL string) (*Tracker, *store, *recordingNotifier) {
	t.Helper()
	st := &store{subs: map[string]model.Subscription{
		"sub-1": {
			ID: "sub-1", TeamID: "team-1", TeamUserReferenceID: "ref-1", APIProductSKU: "journal-entry-save",
			ExpiresAt: now.Add(24 * time.Hour), MaxRequests: max, RequestsConsumed: consumed, CreatedAt: now,
		},
	}}
	team := model.Team{ID: "team-1"}
	if webhookURL != "" {
		team.SubscriptionAlertWebhookURL = &webhookURL
	}
	notifier := &recordingNotifier{}

	tr := New(st, fakeSubs{st}, fakeTeams{"team-1": team}, webhook.NewEnqueuer(fakeQueue{st}, 3), notifier, 90)
	tr.now = func() time.Time { return now }
	return tr, st, notifier
}

func TestIncrementUsage_BelowThresholdDoesNotAlert(t *testing.T) {
	tr, st, notifier := newTracker(t, 5, 10, "https://hooks.example.com/alerts")

	sub, err := tr.IncrementUsage(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), sub.RequestsConsumed)
	assert.Nil(t, sub.NotifiedAt90PercentUse)
	assert.Empty(t, st.queue)
	assert.Empty(t, notifier.triggers)
}

func TestIncrementUsage_CrossingThresholdEnqueuesOnce(t *testing.T) {
	tr, st, notifier := newTracker(t, 8, 10, "https://hooks.example.com/alerts")
	ctx := context.Background()

	sub, err := tr.IncrementUsage(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), sub.RequestsConsumed)
	require.NotNil(t, sub.NotifiedAt90PercentUse)
	assert.Equal(t, now, *sub.NotifiedAt90PercentUse)

	require.Len(t, st.queue, 1)
	row := st.queue[0]
	assert.Equal(t, "https://hooks.example.com/alerts", row.WebhookURL)
	assert.Equal(t, model.WebhookPending, row.Status)
	assert.Equal(t, 3, row.MaxAttempts)
	assert.Equal(t, now, row.ScheduledFor)

	require.Len(t, notifier.triggers, 1)
	assert.Equal(t, row.ID, notifier.triggers[0].EntryID)
	assert.Equal(t, "sub-1", notifier.triggers[0].SubscriptionID)

	// the next request reaches 100% but the gate is already closed
	_, err = tr.IncrementUsage(ctx, "sub-1")
	require.NoError(t, err)
	assert.Len(t, st.queue, 1)
	assert.Len(t, notifier.triggers, 1)
}

func TestIncrementUsage_ConcurrentCrossingsEnqueueExactlyOne(t *testing.T) {
	tr, st, _ := newTracker(t, 0, 10, "https://hooks.example.com/alerts")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.IncrementUsage(context.Background(), "sub-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), st.subs["sub-1"].RequestsConsumed)
	assert.NotNil(t, st.subs["sub-1"].NotifiedAt90PercentUse)
	assert.Len(t, st.queue, 1)
}

func TestIncrementUsage_NoWebhookStillClosesGate(t *testing.T) {
	tr, st, notifier := newTracker(t, 8, 10, "")

	sub, err := tr.IncrementUsage(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.NotNil(t, sub.NotifiedAt90PercentUse)
	assert.NotNil(t, st.subs["sub-1"].NotifiedAt90PercentUse)
	assert.Empty(t, st.queue)
	assert.Empty(t, notifier.triggers)
}

func TestIncrementUsage_EnqueueFailureRollsBackGate(t *testing.T) {
	tr, st, notifier := newTracker(t, 8, 10, "https://hooks.example.com/alerts")
	st.insertErr = errors.New("lock wait timeout exceeded")

	sub, err := tr.IncrementUsage(context.Background(), "sub-1")
	require.NoError(t, err, "alert failures never fail the request")
	assert.Equal(t, int64(9), sub.RequestsConsumed)
	assert.Nil(t, sub.NotifiedAt90PercentUse)
	assert.Nil(t, st.subs["sub-1"].NotifiedAt90PercentUse)
	assert.Empty(t, st.queue)
	assert.Empty(t, notifier.triggers)

	// a later request retries the alert
	st.insertErr = nil
	_, err = tr.IncrementUsage(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Len(t, st.queue, 1)
}

func TestIncrementUsage_NotifierFailureIsIgnored(t *testing.T) {
	tr, st, notifier := newTracker(t, 8, 10, "https://hooks.example.com/alerts")
	notifier.err = errors.New("kafka: leader not available")

	_, err := tr.IncrementUsage(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Len(t, st.queue, 1)
}

func TestIncrementUsage_UnknownSubscription(t *testing.T) {
	tr, _, _ := newTracker(t, 0, 10, "")

	_, err := tr.IncrementUsage(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}
