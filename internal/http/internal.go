package http

import (
	"context"
	"net/http"

	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/webhook"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WebhookProcessor runs one dispatcher batch.
type WebhookProcessor interface {
	ProcessQueue(ctx context.Context) (webhook.Result, error)
}

type processWebhooksResp struct {
	Success bool `json:"success"`
	webhook.Result
}

func processWebhooksHandler(p WebhookProcessor) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := p.ProcessQueue(c.Request().Context())
		if err != nil {
			logger.Log.Error("process webhooks", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]any{
				"success": false,
				"error":   "Failed to process webhook queue",
			})
		}
		return c.JSON(http.StatusOK, processWebhooksResp{Success: true, Result: res})
	}
}

func internalHealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
