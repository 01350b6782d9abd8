package repository

import (
	"context"

	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// RequestLogRepository stores gateway audit rows in ClickHouse (append-only).
type RequestLogRepository interface {
	Insert(ctx context.Context, l model.APIProductRequestLog) error
	ListByTeam(ctx context.Context, teamID, teamUserReferenceID string, limit, offset int) ([]model.APIProductRequestLog, error)
}

type chRequestLogRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHRequestLogRepository(ch *sqlx.DB) RequestLogRepository {
	return &chRequestLogRepository{ch: ch}
}

func (r *chRequestLogRepository) Insert(ctx context.Context, l model.APIProductRequestLog) error {
	_, err := r.ch.ExecContext(ctx, `
		INSERT INTO journal.api_product_request_logs
		    (id, team_id, team_user_reference_id, subscription_id, method, path, ip,
		     status_code, status, request_body, response_body, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.TeamID, l.TeamUserReferenceID, l.SubscriptionID, l.Method, l.Path, l.IP,
		l.StatusCode, l.Status.String(), l.RequestBody, l.ResponseBody, l.ResponseTimeMs, l.CreatedAt)
	return err
}

func (r *chRequestLogRepository) ListByTeam(ctx context.Context, teamID, teamUserReferenceID string, limit, offset int) ([]model.APIProductRequestLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, team_id, team_user_reference_id, subscription_id, method, path, ip,
		       status_code, status, request_body, response_body, response_time_ms, created_at
		FROM journal.api_product_request_logs
		WHERE team_id = ?
	`
	args := []any{teamID}

	if teamUserReferenceID != "" {
		q += " AND team_user_reference_id = ?"
		args = append(args, teamUserReferenceID)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.APIProductRequestLog
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
