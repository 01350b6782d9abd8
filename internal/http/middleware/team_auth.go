package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmehdipour/journal-gateway/internal/auth"
	"github.com/jmehdipour/journal-gateway/internal/logger"
	"github.com/jmehdipour/journal-gateway/internal/metrics"
	"github.com/jmehdipour/journal-gateway/internal/model"
	"github.com/jmehdipour/journal-gateway/internal/ratelimit"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	HeaderAPIKey = "x-api-key"
	HeaderTeamID = "x-team-id"
)

const (
	stageAuth         = "auth"
	stageOrigin       = "origin"
	stageIP           = "ip"
	stageRateLimit    = "rate_limit"
	stageSubscription = "subscription"
)

const defaultAuthCacheSize = 10000

func admit(stage, outcome string) {
	metrics.GatewayAdmissions.WithLabelValues(stage, outcome).Inc()
}

// AuthOptions bound the bcrypt work a caller can trigger before the team rate limit
// applies.
type AuthOptions struct {
	// Limiter caps bcrypt verifications per team id; AttemptsPerMinute <= 0 disables it.
	// Requests answered from the cache are not counted.
	Limiter           ratelimit.Limiter
	AttemptsPerMinute int

	// CacheTTL keeps a verified secret per team so repeat calls skip bcrypt. Zero disables it.
	CacheTTL  time.Duration
	CacheSize int
}

// verifiedSecret is keyed by team id. It is only valid while the stored hash is unchanged.
type verifiedSecret struct {
	hash   string
	digest [sha256.Size]byte
}

// TeamAuthMiddleware authenticates requests using the x-api-key / x-team-id pair.
// On success the team (without its secret hash) is stored in the context.
func TeamAuthMiddleware(teams repository.TeamsRepository, opts AuthOptions) echo.MiddlewareFunc {
	var cache *expirable.LRU[string, verifiedSecret]
	if opts.CacheTTL > 0 {
		size := opts.CacheSize
		if size <= 0 {
			size = defaultAuthCacheSize
		}
		cache = expirable.NewLRU[string, verifiedSecret](size, nil, opts.CacheTTL)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get(HeaderAPIKey))
			teamID := strings.TrimSpace(c.Request().Header.Get(HeaderTeamID))
			if key == "" || teamID == "" {
				admit(stageAuth, "rejected")
				return ErrUnauthorized("Missing x-api-key or x-team-id header")
			}
			if _, err := uuid.Parse(teamID); err != nil {
				admit(stageAuth, "rejected")
				return ErrUnauthorized("Malformed x-team-id header")
			}

			team, err := teams.GetByID(c.Request().Context(), teamID)
			if err != nil {
				admit(stageAuth, "error")
				return ErrInternal("Failed to authenticate team", err)
			}
			if team == nil {
				admit(stageAuth, "rejected")
				return ErrUnauthorized("Invalid API key or team id")
			}

			digest := sha256.Sum256([]byte(key))
			if cache != nil {
				if v, ok := cache.Get(team.ID); ok && v.hash == team.APISecretHash &&
					subtle.ConstantTimeCompare(v.digest[:], digest[:]) == 1 {
					admit(stageAuth, "allowed")
					setTeam(c, *team)
					return next(c)
				}
			}

			if err := throttleVerification(c, opts, team); err != nil {
				return err
			}
			if !auth.VerifyAPISecret(key, team.APISecretHash) {
				admit(stageAuth, "rejected")
				return ErrUnauthorized("Invalid API key or team id")
			}
			if cache != nil {
				cache.Add(team.ID, verifiedSecret{hash: team.APISecretHash, digest: digest})
			}

			admit(stageAuth, "allowed")
			setTeam(c, *team)
			return next(c)
		}
	}
}

// throttleVerification consumes one bcrypt attempt for the team. Limiter errors fail open.
func throttleVerification(c echo.Context, opts AuthOptions, team *model.Team) error {
	if opts.Limiter == nil || opts.AttemptsPerMinute <= 0 {
		return nil
	}
	res, err := opts.Limiter.Consume(c.Request().Context(), "auth:"+team.ID, opts.AttemptsPerMinute)
	if err != nil {
		logger.Log.Warn("auth attempt limiter unavailable", zap.String("team_id", team.ID), zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}
	admit(stageAuth, "throttled")
	retry := res.RetryAfterSeconds()
	c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(retry))
	return ErrTooManyRequests("Too many authentication attempts. Try again in "+strconv.Itoa(retry)+" seconds.", retry)
}
