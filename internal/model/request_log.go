package model

import "time"

type RequestLogStatus string

const (
	RequestPending     RequestLogStatus = "Pending"
	RequestSuccess     RequestLogStatus = "Success"
	RequestAIError     RequestLogStatus = "AI Error"
	RequestServerError RequestLogStatus = "Server Error"
)

func (s RequestLogStatus) String() string {
	return string(s)
}

func (s RequestLogStatus) Valid() bool {
	switch s {
	case RequestPending, RequestSuccess, RequestAIError, RequestServerError:
		return true
	}
	return false
}

// ClassifyStatus maps an HTTP status code onto the audit log status.
func ClassifyStatus(code int) RequestLogStatus {
	switch {
	case code >= 500:
		return RequestServerError
	case code >= 400:
		return RequestAIError
	default:
		return RequestSuccess
	}
}

// APIProductRequestLog is the append-only audit row written once per gateway request.
type APIProductRequestLog struct {
	ID                  string           `db:"id" json:"id"`
	TeamID              string           `db:"team_id" json:"teamId"`
	TeamUserReferenceID string           `db:"team_user_reference_id" json:"teamUserReferenceId"`
	SubscriptionID      string           `db:"subscription_id" json:"subscriptionId"`
	Method              string           `db:"method" json:"method"`
	Path                string           `db:"path" json:"path"`
	IP                  string           `db:"ip" json:"ip"`
	StatusCode          int32            `db:"status_code" json:"statusCode"`
	Status              RequestLogStatus `db:"status" json:"status"`
	RequestBody         string           `db:"request_body" json:"requestBody"`
	ResponseBody        string           `db:"response_body" json:"responseBody"`
	ResponseTimeMs      int64            `db:"response_time_ms" json:"responseTimeMs"`
	CreatedAt           time.Time        `db:"created_at" json:"createdAt"`
}
