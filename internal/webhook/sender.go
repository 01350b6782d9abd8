package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

const (
	DefaultTimeout   = 3000 * time.Millisecond
	DefaultUserAgent = "API-Gateway-Webhook/1.0"
)

var (
	ErrTimeout    = errors.New("webhook: request timeout")
	ErrNoResponse = errors.New("webhook: no response from server")
)

// ErrorMessage renders a delivery failure the way it is stored on the queue row.
func ErrorMessage(err error) string {
	var se *HTTPStatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Error()
	case errors.Is(err, ErrTimeout):
		return "Request timeout"
	case errors.Is(err, ErrNoResponse):
		return "No response from server"
	default:
		return err.Error()
	}
}

// HTTPStatusError is a non-2xx reply from the team's endpoint.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Sender delivers one payload to one URL.
type Sender interface {
	Send(ctx context.Context, url string, payload []byte) error
}

// HTTPSender POSTs JSON payloads with a hard per-call timeout.
type HTTPSender struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

func NewHTTPSender(timeoutMs int, userAgent string) *HTTPSender {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &HTTPSender{
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Send returns nil on any 2xx. Failures are *HTTPStatusError, ErrTimeout,
// ErrNoResponse, or the underlying error for anything else.
func (s *HTTPSender) Send(ctx context.Context, url string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	res, err := s.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}

	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode/100 != 2 {
		return &HTTPStatusError{StatusCode: res.StatusCode}
	}

	return nil
}

func classifyTransportError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ErrTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return ErrNoResponse
	}

	return err
}
