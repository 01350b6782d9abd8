package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmehdipour/journal-gateway/internal/config"
	"github.com/jmehdipour/journal-gateway/internal/http/middleware"
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/metrics"
	"github.com/jmehdipour/journal-gateway/internal/ratelimit"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer needs; cmd/serve builds the real ones.
type Deps struct {
	Teams          repository.TeamsRepository
	Subscriptions  repository.SubscriptionsRepository
	JournalEntries repository.JournalEntriesRepository
	RequestLogs    repository.RequestLogRepository
	Limiter        ratelimit.Limiter
	Usage          middleware.UsageTracker
	Webhooks       WebhookProcessor

	// RecorderGo overrides how request logs are written in the background.
	RecorderGo func(func())
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(gommonlog.WARN)
	e.HTTPErrorHandler = errorHandler
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// internal
	in := e.Group("/internal")
	in.GET("/health", internalHealthHandler)
	in.POST("/process-webhooks", processWebhooksHandler(deps.Webhooks), middleware.InternalSecretMiddleware(cfg.Internal.APISecret))

	// middlewares
	cors := middleware.CORSConfig{
		AllowOrigins: cfg.CORS.AllowOrigins,
		AllowMethods: cfg.CORS.AllowMethods,
		AllowHeaders: cfg.CORS.AllowHeaders,
		MaxAge:       cfg.CORS.MaxAge,
	}
	preflightMW := middleware.PreflightMiddleware(deps.Teams, cors)
	authMW := middleware.TeamAuthMiddleware(deps.Teams, middleware.AuthOptions{
		Limiter:           deps.Limiter,
		AttemptsPerMinute: cfg.Gateway.AuthAttemptsPerMinute,
		CacheTTL:          cfg.Gateway.AuthCacheTTL,
		CacheSize:         cfg.Gateway.AuthCacheSize,
	})
	recorderMW := middleware.RequestRecorderMiddleware(middleware.RecorderConfig{
		Logs:         deps.RequestLogs,
		Usage:        deps.Usage,
		MaxBodyBytes: cfg.Gateway.MaxLoggedBody,
		Timeout:      cfg.Gateway.RecorderTimeout,
		Go:           deps.RecorderGo,
	})
	originMW := middleware.OriginGuardMiddleware(cors)
	ipMW := middleware.IPGuardMiddleware()
	rlMW := middleware.TeamRateLimitMiddleware(deps.Limiter)

	// routes
	gw := e.Group("/v1/gateway")
	if cfg.Gateway.MaxRequestBody != "" {
		gw.Use(echoMid.BodyLimit(cfg.Gateway.MaxRequestBody))
	}
	gw.Use(preflightMW, authMW, recorderMW, originMW, ipMW, rlMW)
	// OPTIONS is answered by preflightMW; the routes only make the paths match
	gw.OPTIONS("/journal-entries", noContent)
	gw.OPTIONS("/request-logs", noContent)
	gw.POST("/journal-entries",
		saveJournalEntryHandler(deps.JournalEntries),
		middleware.SubscriptionGateMiddleware(deps.Subscriptions, cfg.Gateway.Products.SaveJournalEntry),
	)
	gw.GET("/request-logs", listRequestLogsHandler(deps.RequestLogs))

	return &Server{e: e}
}

func noContent(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

// errorHandler renders every error as {statusCode, error, message[, retryAfter]}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *middleware.APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = middleware.NewAPIError(httpErr.Code, fmt.Sprint(httpErr.Message))
	default:
		apiErr = middleware.ErrInternal("Internal server error", err)
	}

	if apiErr.StatusCode >= http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Int("status", apiErr.StatusCode),
			zap.Error(errors.Unwrap(apiErr)),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(apiErr.StatusCode)
	} else {
		err = c.JSON(apiErr.StatusCode, apiErr)
	}
	if err != nil {
		logger.Log.Warn("write error response", zap.Error(err))
	}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
