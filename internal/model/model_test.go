package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, RequestSuccess, ClassifyStatus(200))
	assert.Equal(t, RequestSuccess, ClassifyStatus(201))
	assert.Equal(t, RequestSuccess, ClassifyStatus(304))
	assert.Equal(t, RequestAIError, ClassifyStatus(400))
	assert.Equal(t, RequestAIError, ClassifyStatus(402))
	assert.Equal(t, RequestAIError, ClassifyStatus(429))
	assert.Equal(t, RequestServerError, ClassifyStatus(500))
	assert.Equal(t, RequestServerError, ClassifyStatus(503))
}

func TestStringList_Scan(t *testing.T) {
	var l StringList
	require.NoError(t, l.Scan([]byte(`["a.io","*.b.io"]`)))
	assert.Equal(t, StringList{"a.io", "*.b.io"}, l)

	require.NoError(t, l.Scan(`[]`))
	assert.Empty(t, l)

	require.NoError(t, l.Scan(nil))
	assert.Nil(t, l)

	require.NoError(t, l.Scan([]byte{}))
	assert.Nil(t, l)

	assert.Error(t, l.Scan(42))
	assert.Error(t, l.Scan("{not json"))
}

func TestStringList_Value(t *testing.T) {
	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = StringList{"10.0.0.0/24"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["10.0.0.0/24"]`, v)
}

func TestSubscription_Active(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Subscription{ExpiresAt: now.Add(time.Hour), MaxRequests: 10, RequestsConsumed: 9}
	assert.True(t, s.Active(now))

	s.RequestsConsumed = 10
	assert.False(t, s.Active(now), "exhausted")

	s.RequestsConsumed = 0
	s.ExpiresAt = now
	assert.False(t, s.Active(now), "expiry is exclusive")
}

func TestSubscription_UsagePercent(t *testing.T) {
	assert.InDelta(t, 90.0, Subscription{MaxRequests: 30, RequestsConsumed: 27}.UsagePercent(), 1e-9)
	assert.Equal(t, 100.0, Subscription{}.UsagePercent())
}

func TestTeam_WithoutSecret(t *testing.T) {
	url := "https://hooks.acme.io/usage"
	team := Team{ID: "t", APISecretHash: "$2a$12$hash", SubscriptionAlertWebhookURL: &url}

	public := team.WithoutSecret()
	assert.Empty(t, public.APISecretHash)
	assert.Equal(t, "$2a$12$hash", team.APISecretHash)
	assert.Equal(t, url, public.WebhookURL())
	assert.Empty(t, Team{}.WebhookURL())
}
