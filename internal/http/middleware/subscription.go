package middleware

import (
	"strings"

	"github.com/jmehdipour/journal-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
)

const QueryTeamUserReferenceID = "teamUserReferenceId"

// SubscriptionGateMiddleware admits the request only if the end customer named by
// ?teamUserReferenceId holds an active subscription to sku. It never consumes quota.
func SubscriptionGateMiddleware(subs repository.SubscriptionsRepository, sku string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			team := TeamFromCtx(c)
			if team == nil {
				return ErrUnauthorized("Team not authenticated")
			}

			ref := strings.TrimSpace(c.QueryParam(QueryTeamUserReferenceID))
			if ref == "" {
				admit(stageSubscription, "rejected")
				return ErrBadRequest("Missing teamUserReferenceId query parameter")
			}

			sub, err := subs.FindActive(c.Request().Context(), team.ID, ref, sku)
			if err != nil {
				admit(stageSubscription, "error")
				return ErrInternal("Failed to check subscription", err)
			}
			if sub == nil {
				admit(stageSubscription, "rejected")
				return ErrPaymentRequired("No active subscription found for this product")
			}

			admit(stageSubscription, "allowed")
			c.Set(ctxSubscription, sub)
			return next(c)
		}
	}
}
