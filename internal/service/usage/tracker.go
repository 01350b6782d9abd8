package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/kafka"
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/metrics"
	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/webhook"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const DefaultAlertThreshold = 90.0

// DispatchNotifier wakes dispatcher workers after a webhook row is committed.
type DispatchNotifier interface {
	PublishDispatch(ctx context.Context, t kafka.DispatchTrigger) error
}

// Tracker counts billable requests and raises the one-time usage alert.
type Tracker struct {
	Tx            repository.TxRunner
	Subscriptions repository.SubscriptionsRepository
	Teams         repository.TeamsRepository
	Enqueuer      *webhook.Enqueuer
	Notifier      DispatchNotifier // optional
	Threshold     float64

	now func() time.Time
}

func New(
	tx repository.TxRunner,
	subs repository.SubscriptionsRepository,
	teams repository.TeamsRepository,
	enq *webhook.Enqueuer,
	notifier DispatchNotifier,
	threshold float64,
) *Tracker {
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}
	return &Tracker{
		Tx:            tx,
		Subscriptions: subs,
		Teams:         teams,
		Enqueuer:      enq,
		Notifier:      notifier,
		Threshold:     threshold,
		now:           time.Now,
	}
}

// IncrementUsage consumes one request from the subscription. Crossing the alert
// threshold for the first time marks the subscription notified and, when the team
// has a webhook configured, enqueues exactly one alert in the same transaction.
// Alert failures are logged; the increment itself has already been stored.
func (t *Tracker) IncrementUsage(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	sub, err := t.Subscriptions.IncrementUsage(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("increment usage %s: %w", subscriptionID, err)
	}

	if sub.NotifiedAt90PercentUse != nil || !t.reached(sub) {
		return sub, nil
	}

	if err := t.alert(ctx, sub); err != nil {
		metrics.UsageAlerts.WithLabelValues("error").Inc()
		logger.Log.Error("usage alert",
			zap.String("subscription_id", sub.ID),
			zap.String("team_id", sub.TeamID),
			zap.Error(err),
		)
	}
	return sub, nil
}

func (t *Tracker) alert(ctx context.Context, sub *model.Subscription) error {
	team, err := t.Teams.GetByID(ctx, sub.TeamID)
	if err != nil {
		return fmt.Errorf("load team %s: %w", sub.TeamID, err)
	}
	webhookURL := ""
	if team != nil {
		webhookURL = team.WebhookURL()
	}

	now := t.clock().UTC()
	var (
		won   bool
		entry *model.WebhookCallQueueEntry
	)
	err = t.Tx.InTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := t.Subscriptions.MarkNotified(ctx, tx, sub.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true
		if webhookURL == "" {
			return nil
		}
		e, err := t.Enqueuer.Enqueue(ctx, tx, webhookURL, *sub, now)
		if err != nil {
			return err
		}
		entry = &e
		return nil
	})
	if err != nil {
		return err
	}

	if !won {
		metrics.UsageAlerts.WithLabelValues("lost_race").Inc()
		return nil
	}
	sub.NotifiedAt90PercentUse = &now

	if entry == nil {
		metrics.UsageAlerts.WithLabelValues("no_webhook").Inc()
		logger.Log.Info("usage threshold reached without webhook", zap.String("subscription_id", sub.ID))
		return nil
	}

	metrics.UsageAlerts.WithLabelValues("enqueued").Inc()
	logger.Log.Info("usage alert enqueued",
		zap.String("id", entry.ID),
		zap.String("subscription_id", sub.ID),
		zap.Float64("usage_percent", sub.UsagePercent()),
	)

	if t.Notifier != nil {
		trigger := kafka.DispatchTrigger{EntryID: entry.ID, SubscriptionID: sub.ID, QueuedAt: now}
		if err := t.Notifier.PublishDispatch(ctx, trigger); err != nil {
			// the row is durable; the next periodic run picks it up
			logger.Log.Warn("publish dispatch trigger", zap.String("id", entry.ID), zap.Error(err))
		}
	}
	return nil
}

// reached compares consumed/max against the threshold without dividing, so 9 of 10
// is exactly 90%.
func (t *Tracker) reached(sub *model.Subscription) bool {
	if sub.MaxRequests <= 0 {
		return true
	}
	return float64(sub.RequestsConsumed)*100 >= t.Threshold*float64(sub.MaxRequests)
}

func (t *Tracker) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}
