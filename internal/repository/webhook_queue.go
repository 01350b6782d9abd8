package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/util"
	"github.com/jmoiron/sqlx"
)

// WebhookQueueRepository persists webhook_call_queue rows. Only the enqueuer inserts;
// only the dispatcher claims and completes.
type WebhookQueueRepository interface {
	// Insert writes a single entry. If tx is nil, it opens/commits its own transaction.
	Insert(ctx context.Context, tx *sqlx.Tx, e model.WebhookCallQueueEntry) error
	// ClaimDue locks up to limit due rows (SKIP LOCKED), stamps them with a fresh claim
	// token and pushes scheduled_for to now+lease so other runs skip them.
	ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.WebhookCallQueueEntry, error)
	// The Mark* methods persist e.Attempts (and e.ScheduledFor for retries/failures) as
	// computed by the caller, guarded by e.ClaimToken. ErrClaimLost means another run
	// took the row over after the lease expired.
	MarkSent(ctx context.Context, e model.WebhookCallQueueEntry, at time.Time) error
	MarkRetry(ctx context.Context, e model.WebhookCallQueueEntry, at time.Time, errMsg string) error
	MarkFailed(ctx context.Context, e model.WebhookCallQueueEntry, at time.Time, errMsg string) error
	// Release hands a claimed row back untouched except for scheduled_for; no attempt is recorded.
	Release(ctx context.Context, e model.WebhookCallQueueEntry, at, next time.Time) error
	GetByID(ctx context.Context, id string) (*model.WebhookCallQueueEntry, error)
}

type WebhookQueueRepositoryImpl struct {
	db *sqlx.DB
}

func NewWebhookQueueRepository(db *sqlx.DB) *WebhookQueueRepositoryImpl {
	return &WebhookQueueRepositoryImpl{db: db}
}

var _ WebhookQueueRepository = (*WebhookQueueRepositoryImpl)(nil)

const webhookColumns = `id, team_id, subscription_id, webhook_url, payload, status, attempts, max_attempts,
		       last_attempt_at, scheduled_for, sent_at, error_message, claim_token, created_at, updated_at`

func (r *WebhookQueueRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, e model.WebhookCallQueueEntry) error {
	const q = `
		INSERT INTO webhook_call_queue
		    (id, team_id, subscription_id, webhook_url, payload, status, attempts, max_attempts,
		     scheduled_for, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.TeamID, e.SubscriptionID, e.WebhookURL, []byte(e.Payload), e.Status.String(),
			e.Attempts, e.MaxAttempts, e.ScheduledFor, e.CreatedAt, e.CreatedAt,
		)
		return err
	})
}

func (r *WebhookQueueRepositoryImpl) ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.WebhookCallQueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var claimed []model.WebhookCallQueueEntry
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var rows []model.WebhookCallQueueEntry
		if err := tx.SelectContext(ctx, &rows, `
			SELECT `+webhookColumns+`
			  FROM webhook_call_queue
			 WHERE status = 'Pending'
			   AND scheduled_for <= ?
			   AND attempts < max_attempts
			 ORDER BY scheduled_for ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED
		`, now, limit); err != nil {
			return fmt.Errorf("select due webhooks: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}

		token := util.NewAt(now)
		query, args, err := sqlx.In(`
			UPDATE webhook_call_queue
			   SET claim_token = ?, scheduled_for = ?, updated_at = ?
			 WHERE id IN (?)
		`, token, now.Add(lease), now, ids)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("claim due webhooks: %w", err)
		}

		for i := range rows {
			rows[i].ClaimToken = &token
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *WebhookQueueRepositoryImpl) MarkSent(ctx context.Context, e model.WebhookCallQueueEntry, at time.Time) error {
	return r.complete(ctx, `
		UPDATE webhook_call_queue
		   SET status = 'Sent', attempts = ?, sent_at = ?, last_attempt_at = ?,
		       error_message = NULL, claim_token = NULL, updated_at = ?
		 WHERE id = ? AND claim_token = ? AND status = 'Pending'
	`, e.Attempts, at, at, at, e.ID, claimToken(e))
}

func (r *WebhookQueueRepositoryImpl) MarkRetry(ctx context.Context, e model.WebhookCallQueueEntry, at time.Time, errMsg string) error {
	return r.complete(ctx, `
		UPDATE webhook_call_queue
		   SET attempts = ?, last_attempt_at = ?, scheduled_for = ?, error_message = ?,
		       claim_token = NULL, updated_at = ?
		 WHERE id = ? AND claim_token = ? AND status = 'Pending'
	`, e.Attempts, at, e.ScheduledFor, errMsg, at, e.ID, claimToken(e))
}

func (r *WebhookQueueRepositoryImpl) MarkFailed(ctx context.Context, e model.WebhookCallQueueEntry, at time.Time, errMsg string) error {
	return r.complete(ctx, `
		UPDATE webhook_call_queue
		   SET status = 'Failed', attempts = ?, last_attempt_at = ?, scheduled_for = ?,
		       error_message = ?, claim_token = NULL, updated_at = ?
		 WHERE id = ? AND claim_token = ? AND status = 'Pending'
	`, e.Attempts, at, e.ScheduledFor, errMsg, at, e.ID, claimToken(e))
}

func (r *WebhookQueueRepositoryImpl) Release(ctx context.Context, e model.WebhookCallQueueEntry, at, next time.Time) error {
	return r.complete(ctx, `
		UPDATE webhook_call_queue
		   SET scheduled_for = ?, claim_token = NULL, updated_at = ?
		 WHERE id = ? AND claim_token = ? AND status = 'Pending'
	`, next, at, e.ID, claimToken(e))
}

func (r *WebhookQueueRepositoryImpl) complete(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *WebhookQueueRepositoryImpl) GetByID(ctx context.Context, id string) (*model.WebhookCallQueueEntry, error) {
	var e model.WebhookCallQueueEntry
	err := r.db.GetContext(ctx, &e, `SELECT `+webhookColumns+` FROM webhook_call_queue WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func claimToken(e model.WebhookCallQueueEntry) string {
	if e.ClaimToken == nil {
		return ""
	}
	return *e.ClaimToken
}
