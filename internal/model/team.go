package model

import "time"

// Team is a partner account calling the metered API.
type Team struct {
	ID                          string     `db:"id" json:"id"`
	Name                        string     `db:"name" json:"name"`
	APISecretHash               string     `db:"api_secret_hash" json:"-"`
	AllowedDomains              StringList `db:"allowed_domains" json:"allowedDomains"`
	AllowedIPs                  StringList `db:"allowed_ips" json:"allowedIps"`
	RateLimitPerMinute          *int       `db:"rate_limit_per_minute" json:"rateLimitPerMinute"` // nullable = unmetered
	SubscriptionAlertWebhookURL *string    `db:"subscription_alert_webhook_url" json:"subscriptionAlertWebhookUrl"`
	CreatedAt                   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt                   time.Time  `db:"updated_at" json:"updatedAt"`
}

// WithoutSecret returns a copy safe to hand to downstream stages.
func (t Team) WithoutSecret() Team {
	t.APISecretHash = ""
	return t
}

// WebhookURL returns the configured alert sink, or "" when none is set.
func (t Team) WebhookURL() string {
	if t.SubscriptionAlertWebhookURL == nil {
		return ""
	}
	return *t.SubscriptionAlertWebhookURL
}
