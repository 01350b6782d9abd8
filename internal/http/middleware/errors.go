package middleware

import (
	"net/http"
)

// APIError is the JSON error body every gateway rejection renders as.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Kind       string `json:"error"`
	Message    string `json:"message"`
	RetryAfter *int   `json:"retryAfter,omitempty"`

	cause error
}

func (e *APIError) Error() string { return e.Message }
func (e *APIError) Unwrap() error { return e.cause }

// NewAPIError builds an error whose kind is the standard status text for code.
func NewAPIError(code int, message string) *APIError {
	return &APIError{StatusCode: code, Kind: http.StatusText(code), Message: message}
}

// WithCause attaches an underlying error for logging; it is never rendered.
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}

func ErrBadRequest(msg string) *APIError      { return NewAPIError(http.StatusBadRequest, msg) }
func ErrUnauthorized(msg string) *APIError    { return NewAPIError(http.StatusUnauthorized, msg) }
func ErrPaymentRequired(msg string) *APIError { return NewAPIError(http.StatusPaymentRequired, msg) }
func ErrForbidden(msg string) *APIError       { return NewAPIError(http.StatusForbidden, msg) }
func ErrUnavailable(msg string) *APIError     { return NewAPIError(http.StatusServiceUnavailable, msg) }

func ErrTooManyRequests(msg string, retryAfter int) *APIError {
	e := NewAPIError(http.StatusTooManyRequests, msg)
	e.RetryAfter = &retryAfter
	return e
}

func ErrInternal(msg string, cause error) *APIError {
	return NewAPIError(http.StatusInternalServerError, msg).WithCause(cause)
}
