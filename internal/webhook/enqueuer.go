package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/util"
	"github.com/jmoiron/sqlx"
)

// Enqueuer turns a threshold crossing into one pending queue row.
type Enqueuer struct {
	Queue       repository.WebhookQueueRepository
	MaxAttempts int
}

func NewEnqueuer(queue repository.WebhookQueueRepository, maxAttempts int) *Enqueuer {
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultWebhookMaxAttempts
	}
	return &Enqueuer{Queue: queue, MaxAttempts: maxAttempts}
}

// UsageAlertPayload builds the fixed alert body for sub as observed at now.
func UsageAlertPayload(sub model.Subscription, now time.Time) model.UsageAlertPayload {
	return model.UsageAlertPayload{
		Event:            model.EventSubscriptionUsageAlert,
		SubscriptionID:   sub.ID,
		TeamID:           sub.TeamID,
		APIProductSKU:    sub.APIProductSKU,
		RequestsConsumed: sub.RequestsConsumed,
		MaxRequests:      sub.MaxRequests,
		UsagePercent:     int(math.Round(sub.UsagePercent())),
		Timestamp:        now.UTC().Format(time.RFC3339),
	}
}

// Enqueue inserts the alert row inside tx; it never commits on its own when tx is set.
func (q *Enqueuer) Enqueue(ctx context.Context, tx *sqlx.Tx, webhookURL string, sub model.Subscription, now time.Time) (model.WebhookCallQueueEntry, error) {
	body, err := json.Marshal(UsageAlertPayload(sub, now))
	if err != nil {
		return model.WebhookCallQueueEntry{}, fmt.Errorf("marshal usage alert: %w", err)
	}

	entry := model.WebhookCallQueueEntry{
		ID:             util.NewAt(now),
		TeamID:         sub.TeamID,
		SubscriptionID: sub.ID,
		WebhookURL:     webhookURL,
		Payload:        body,
		Status:         model.WebhookPending,
		Attempts:       0,
		MaxAttempts:    q.MaxAttempts,
		ScheduledFor:   now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := q.Queue.Insert(ctx, tx, entry); err != nil {
		return model.WebhookCallQueueEntry{}, fmt.Errorf("insert webhook call: %w", err)
	}
	return entry, nil
}
