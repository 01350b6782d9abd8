package middleware

import (
	"strconv"

	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/ratelimit"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
)

// TeamRateLimitMiddleware applies the team's rateLimitPerMinute. Teams without a
// limit are unmetered. It expects the team in echo.Context (set by TeamAuthMiddleware).
func TeamRateLimitMiddleware(limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			team := TeamFromCtx(c)
			if team == nil || team.RateLimitPerMinute == nil || *team.RateLimitPerMinute <= 0 || limiter == nil {
				return next(c)
			}
			limit := *team.RateLimitPerMinute

			res, err := limiter.Consume(c.Request().Context(), team.ID, limit)
			if err != nil {
				// backend down: admit rather than take the API offline
				admit(stageRateLimit, "error")
				logger.Log.Warn("rate limiter unavailable", zap.String("team_id", team.ID), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))

			if !res.Allowed {
				admit(stageRateLimit, "rejected")
				retry := res.RetryAfterSeconds()
				h.Set(echo.HeaderRetryAfter, strconv.Itoa(retry))
				return ErrTooManyRequests("Rate limit exceeded. Try again in "+strconv.Itoa(retry)+" seconds.", retry)
			}
			admit(stageRateLimit, "allowed")
			return next(c)
		}
	}
}
