package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Subscription ")
	require.NoError(t, err)
	assert.Equal(t, KindSubscription, k)

	_, err = ParseKind("invoice")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestRegistry_GetTeamStripsSecret(t *testing.T) {
	db, mock := newMockDB(t)
	reg := Registry{Teams: NewTeamsRepository(db)}
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM teams WHERE id = ? LIMIT 1")).
		WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "api_secret_hash", "allowed_domains", "allowed_ips", "rate_limit_per_minute",
			"subscription_alert_webhook_url", "created_at", "updated_at",
		}).AddRow("team-1", "Acme", "$2a$12$hash", []byte(`["app.acme.io"]`), []byte(`[]`), int64(10), nil, now, now))

	v, err := reg.Get(context.Background(), KindTeam, "team-1")
	require.NoError(t, err)
	team, ok := v.(model.Team)
	require.True(t, ok)
	assert.Empty(t, team.APISecretHash)
	assert.Equal(t, model.StringList{"app.acme.io"}, team.AllowedDomains)
	require.NotNil(t, team.RateLimitPerMinute)
	assert.Equal(t, 10, *team.RateLimitPerMinute)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistry_GetUnknownKind(t *testing.T) {
	_, err := Registry{}.Get(context.Background(), Kind("invoice"), "x")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestTeams_GetAllowedDomains(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTeamsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT allowed_domains FROM teams")).
		WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{"allowed_domains"}).AddRow([]byte(`["*.acme.io"]`)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT allowed_domains FROM teams")).
		WithArgs("team-2").
		WillReturnRows(sqlmock.NewRows([]string{"allowed_domains"}))

	domains, found, err := repo.GetAllowedDomains(context.Background(), "team-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, model.StringList{"*.acme.io"}, domains)

	domains, found, err = repo.GetAllowedDomains(context.Background(), "team-2")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, domains)
	require.NoError(t, mock.ExpectationsWereMet())
}
