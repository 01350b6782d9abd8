package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type SubscriptionsRepository interface {
	// FindActive returns the newest unexpired, non-exhausted subscription, or (nil, nil).
	FindActive(ctx context.Context, teamID, teamUserReferenceID, sku string) (*model.Subscription, error)
	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	// IncrementUsage bumps requests_consumed by one in a single atomic statement and
	// returns the row carrying the post-increment value.
	IncrementUsage(ctx context.Context, id string) (*model.Subscription, error)
	// MarkNotified sets notified_at_90_percent_use only if it is still NULL and
	// reports whether this caller won.
	MarkNotified(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error)
	Insert(ctx context.Context, s model.Subscription) error
}

type SubscriptionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscriptionsRepository(db *sqlx.DB) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db}
}

var _ SubscriptionsRepository = (*SubscriptionsRepositoryImpl)(nil)

const subscriptionColumns = `id, team_id, team_user_reference_id, api_product_sku, expires_at,
		       max_requests, requests_consumed, notified_at_90_percent_use, created_at`

func (r *SubscriptionsRepositoryImpl) FindActive(ctx context.Context, teamID, teamUserReferenceID, sku string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.GetContext(ctx, &s, `
		SELECT `+subscriptionColumns+`
		  FROM subscriptions
		 WHERE team_id = ?
		   AND team_user_reference_id = ?
		   AND api_product_sku = ?
		   AND expires_at > UTC_TIMESTAMP()
		   AND requests_consumed < max_requests
		 ORDER BY created_at DESC
		 LIMIT 1
	`, teamID, teamUserReferenceID, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.GetContext(ctx, &s, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementUsage relies on MySQL's LAST_INSERT_ID(expr): the incremented value is
// returned in the OK packet of the UPDATE itself, so the counter never goes through a
// fetch-then-write cycle. The follow-up read only fills in the remaining columns.
func (r *SubscriptionsRepositoryImpl) IncrementUsage(ctx context.Context, id string) (*model.Subscription, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		   SET requests_consumed = LAST_INSERT_ID(requests_consumed + 1)
		 WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	consumed, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read incremented usage: %w", err)
	}

	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	s.RequestsConsumed = consumed
	return s, nil
}

func (r *SubscriptionsRepositoryImpl) MarkNotified(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error) {
	var won bool
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			   SET notified_at_90_percent_use = ?
			 WHERE id = ? AND notified_at_90_percent_use IS NULL
		`, at, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		won = n == 1
		return nil
	})
	return won, err
}

func (r *SubscriptionsRepositoryImpl) Insert(ctx context.Context, s model.Subscription) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions
		    (id, team_id, team_user_reference_id, api_product_sku, expires_at, max_requests,
		     requests_consumed, notified_at_90_percent_use, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.TeamID, s.TeamUserReferenceID, s.APIProductSKU, s.ExpiresAt, s.MaxRequests,
		s.RequestsConsumed, s.NotifiedAt90PercentUse, s.CreatedAt)
	return err
}
