package middleware

import (
	"github.com/jmehdipour/journal-gateway/internal/model"
	echo "github.com/labstack/echo/v4"
)

const (
	ctxTeam         = "gateway.team"
	ctxSubscription = "gateway.subscription"
)

// TeamFromCtx returns the team attached by TeamAuthMiddleware. The secret hash is
// always stripped.
func TeamFromCtx(c echo.Context) *model.Team {
	t, _ := c.Get(ctxTeam).(*model.Team)
	return t
}

// SubscriptionFromCtx returns the subscription attached by SubscriptionGateMiddleware.
func SubscriptionFromCtx(c echo.Context) *model.Subscription {
	s, _ := c.Get(ctxSubscription).(*model.Subscription)
	return s
}

func setTeam(c echo.Context, t model.Team) {
	public := t.WithoutSecret()
	c.Set(ctxTeam, &public)
}
