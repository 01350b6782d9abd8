package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type TeamsRepository interface {
	// GetByID returns (nil, nil) when the team does not exist.
	GetByID(ctx context.Context, id string) (*model.Team, error)
	// GetAllowedDomains is the cheap lookup used by CORS preflight.
	GetAllowedDomains(ctx context.Context, id string) (domains model.StringList, found bool, err error)
	Upsert(ctx context.Context, t model.Team) error
}

type TeamsRepositoryImpl struct {
	db *sqlx.DB
}

func NewTeamsRepository(db *sqlx.DB) *TeamsRepositoryImpl {
	return &TeamsRepositoryImpl{db: db}
}

var _ TeamsRepository = (*TeamsRepositoryImpl)(nil)

func (r *TeamsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := r.db.GetContext(ctx, &t, `
		SELECT id, name, api_secret_hash, allowed_domains, allowed_ips, rate_limit_per_minute,
		       subscription_alert_webhook_url, created_at, updated_at
		  FROM teams
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TeamsRepositoryImpl) GetAllowedDomains(ctx context.Context, id string) (model.StringList, bool, error) {
	var domains model.StringList
	err := r.db.QueryRowxContext(ctx, `SELECT allowed_domains FROM teams WHERE id = ? LIMIT 1`, id).Scan(&domains)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return domains, true, nil
}

// Upsert provisions or updates a team (used by seeding; provisioning proper is out of band).
func (r *TeamsRepositoryImpl) Upsert(ctx context.Context, t model.Team) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO teams
		    (id, name, api_secret_hash, allowed_domains, allowed_ips, rate_limit_per_minute,
		     subscription_alert_webhook_url, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    name                           = VALUES(name),
		    api_secret_hash                = VALUES(api_secret_hash),
		    allowed_domains                = VALUES(allowed_domains),
		    allowed_ips                    = VALUES(allowed_ips),
		    rate_limit_per_minute          = VALUES(rate_limit_per_minute),
		    subscription_alert_webhook_url = VALUES(subscription_alert_webhook_url),
		    updated_at                     = VALUES(updated_at)
	`, t.ID, t.Name, t.APISecretHash, t.AllowedDomains, t.AllowedIPs, t.RateLimitPerMinute,
		t.SubscriptionAlertWebhookURL)
	return err
}
