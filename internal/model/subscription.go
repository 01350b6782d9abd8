package model

import "time"

// Subscription grants one team/end-customer/SKU a bounded number of requests until ExpiresAt.
type Subscription struct {
	ID                     string     `db:"id" json:"id"`
	TeamID                 string     `db:"team_id" json:"teamId"`
	TeamUserReferenceID    string     `db:"team_user_reference_id" json:"teamUserReferenceId"`
	APIProductSKU          string     `db:"api_product_sku" json:"apiProductSku"`
	ExpiresAt              time.Time  `db:"expires_at" json:"expiresAt"`
	MaxRequests            int64      `db:"max_requests" json:"maxRequests"`
	RequestsConsumed       int64      `db:"requests_consumed" json:"requestsConsumed"`
	NotifiedAt90PercentUse *time.Time `db:"notified_at_90_percent_use" json:"notifiedAt90PercentUse"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
}

// Active reports whether the subscription can still admit requests at now.
func (s Subscription) Active(now time.Time) bool {
	return s.ExpiresAt.After(now) && s.RequestsConsumed < s.MaxRequests
}

// UsagePercent is RequestsConsumed as a percentage of MaxRequests.
func (s Subscription) UsagePercent() float64 {
	if s.MaxRequests <= 0 {
		return 100
	}
	return float64(s.RequestsConsumed) / float64(s.MaxRequests) * 100
}
