package model

import (
	"encoding/json"
	"time"
)

type WebhookStatus string

const (
	WebhookPending WebhookStatus = "Pending"
	WebhookSent    WebhookStatus = "Sent"
	WebhookFailed  WebhookStatus = "Failed"
)

func (s WebhookStatus) String() string {
	return string(s)
}

func (s WebhookStatus) Valid() bool {
	return s == WebhookPending || s == WebhookSent || s == WebhookFailed
}

// Terminal reports whether no further transition is allowed.
func (s WebhookStatus) Terminal() bool {
	return s == WebhookSent || s == WebhookFailed
}

const (
	EventSubscriptionUsageAlert = "subscription.usage_alert"
	DefaultWebhookMaxAttempts   = 3
)

// WebhookCallQueueEntry is one persisted outbound webhook call.
type WebhookCallQueueEntry struct {
	ID             string          `db:"id" json:"id"`
	TeamID         string          `db:"team_id" json:"teamId"`
	SubscriptionID string          `db:"subscription_id" json:"subscriptionId"`
	WebhookURL     string          `db:"webhook_url" json:"webhookUrl"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	Status         WebhookStatus   `db:"status" json:"status"`
	Attempts       int             `db:"attempts" json:"attempts"`
	MaxAttempts    int             `db:"max_attempts" json:"maxAttempts"`
	LastAttemptAt  *time.Time      `db:"last_attempt_at" json:"lastAttemptAt"`
	ScheduledFor   time.Time       `db:"scheduled_for" json:"scheduledFor"`
	SentAt         *time.Time      `db:"sent_at" json:"sentAt"`
	ErrorMessage   *string         `db:"error_message" json:"errorMessage"`
	ClaimToken     *string         `db:"claim_token" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// UsageAlertPayload is the body POSTed to a team's alert webhook.
type UsageAlertPayload struct {
	Event            string `json:"event"`
	SubscriptionID   string `json:"subscriptionId"`
	TeamID           string `json:"teamId"`
	APIProductSKU    string `json:"apiProductSku"`
	RequestsConsumed int64  `json:"requestsConsumed"`
	MaxRequests      int64  `json:"maxRequests"`
	UsagePercent     int    `json:"usagePercent"`
	Timestamp        string `json:"timestamp"`
}
