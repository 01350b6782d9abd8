package middleware

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/jmehdipour/journal-gateway/internal/util"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UsageTracker consumes one request of quota after a successful business response.
type UsageTracker interface {
	IncrementUsage(ctx context.Context, subscriptionID string) (*model.Subscription, error)
}

type RecorderConfig struct {
	Logs         repository.RequestLogRepository
	Usage        UsageTracker
	MaxBodyBytes int           // captured request/response bodies are truncated to this size
	Timeout      time.Duration // bound on the post-response storage work

	// Go runs the request-log write; defaults to util.SafeGo. Tests pass a synchronous runner.
	Go func(func())
}

// RequestRecorderMiddleware writes one request log per gated request and charges
// usage when the response is a success. Storage failures here are logged, never
// returned to the caller.
func RequestRecorderMiddleware(cfg RecorderConfig) echo.MiddlewareFunc {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Go == nil {
		cfg.Go = util.SafeGo
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			var reqBody []byte
			if req.Body != nil {
				b, rerr := io.ReadAll(req.Body)
				if rerr != nil {
					// BodyLimit reports oversized bodies through the reader
					var he *echo.HTTPError
					if errors.As(rerr, &he) {
						return he
					}
					return ErrBadRequest("Failed to read request body")
				}
				reqBody = b
			}
			req.Body = io.NopCloser(bytes.NewReader(reqBody))

			resBody := &cappedBuffer{max: cfg.MaxBodyBytes}
			c.Response().Writer = &bodyDumpWriter{ResponseWriter: c.Response().Writer, tee: resBody}

			err := next(c)
			if err != nil {
				// render now so the logged status is the one the client sees
				c.Error(err)
			}

			status := c.Response().Status
			entry := model.APIProductRequestLog{
				ID:             util.New(),
				Method:         req.Method,
				Path:           req.URL.Path,
				IP:             ClientIP(req),
				StatusCode:     int32(status),
				Status:         model.ClassifyStatus(status),
				RequestBody:    truncate(reqBody, cfg.MaxBodyBytes),
				ResponseBody:   resBody.String(),
				ResponseTimeMs: time.Since(start).Milliseconds(),
				CreatedAt:      start.UTC(),
			}
			if team := TeamFromCtx(c); team != nil {
				entry.TeamID = team.ID
			}
			sub := SubscriptionFromCtx(c)
			if sub != nil {
				entry.SubscriptionID = sub.ID
				entry.TeamUserReferenceID = sub.TeamUserReferenceID
			} else {
				entry.TeamUserReferenceID = c.QueryParam(QueryTeamUserReferenceID)
			}

			bg := context.WithoutCancel(req.Context())

			if sub != nil && status < http.StatusBadRequest && cfg.Usage != nil {
				ctx, cancel := context.WithTimeout(bg, cfg.Timeout)
				if _, uerr := cfg.Usage.IncrementUsage(ctx, sub.ID); uerr != nil {
					logger.Log.Error("increment usage", zap.String("subscription_id", sub.ID), zap.Error(uerr))
				}
				cancel()
			}

			if cfg.Logs != nil {
				cfg.Go(func() {
					ctx, cancel := context.WithTimeout(bg, cfg.Timeout)
					defer cancel()
					if lerr := cfg.Logs.Insert(ctx, entry); lerr != nil {
						logger.Log.Error("persist request log",
							zap.String("team_id", entry.TeamID),
							zap.String("path", entry.Path),
							zap.Error(lerr),
						)
					}
				})
			}
			return err
		}
	}
}

func truncate(b []byte, max int) string {
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}

// cappedBuffer keeps the first max bytes written and drops the rest.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }

type bodyDumpWriter struct {
	http.ResponseWriter
	tee io.Writer
}

func (w *bodyDumpWriter) Write(b []byte) (int, error) {
	_, _ = w.tee.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyDumpWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *bodyDumpWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("response writer does not support hijacking")
}

func (w *bodyDumpWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
