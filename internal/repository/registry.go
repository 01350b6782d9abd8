package repository

import (
	"context"
	"fmt"
	"strings"
)

// Kind names one of the entity kinds the store exposes generically.
type Kind string

const (
	KindTeam         Kind = "team"
	KindSubscription Kind = "subscription"
	KindWebhookCall  Kind = "webhook_call"
)

func (k Kind) String() string { return string(k) }

// ParseKind normalizes input and rejects anything outside the closed set.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindTeam, KindSubscription, KindWebhookCall:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Registry maps each Kind to its typed repository.
type Registry struct {
	Teams         TeamsRepository
	Subscriptions SubscriptionsRepository
	WebhookQueue  WebhookQueueRepository
}

// Get loads one entity by kind and id. A missing row yields (nil, nil).
func (r Registry) Get(ctx context.Context, kind Kind, id string) (any, error) {
	switch kind {
	case KindTeam:
		t, err := r.Teams.GetByID(ctx, id)
		if err != nil || t == nil {
			return nil, err
		}
		return t.WithoutSecret(), nil
	case KindSubscription:
		s, err := r.Subscriptions.GetByID(ctx, id)
		if err != nil || s == nil {
			return nil, err
		}
		return s, nil
	case KindWebhookCall:
		e, err := r.WebhookQueue.GetByID(ctx, id)
		if err != nil || e == nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
