package middleware

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmehdipour/journal-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
)

// CORSConfig is the service-wide policy, used for teams without allowedDomains.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

func (cfg CORSConfig) global() echo.MiddlewareFunc {
	return echoMid.CORSWithConfig(echoMid.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
		AllowHeaders: cfg.AllowHeaders,
		MaxAge:       cfg.MaxAge,
	})
}

// reflect writes the CORS headers for an origin admitted by a team allow-list.
func (cfg CORSConfig) reflect(h http.Header, origin string, preflight bool) {
	h.Add(echo.HeaderVary, echo.HeaderOrigin)
	h.Set(echo.HeaderAccessControlAllowOrigin, origin)
	h.Set(echo.HeaderAccessControlAllowCredentials, "true")
	if !preflight {
		return
	}
	h.Set(echo.HeaderAccessControlAllowMethods, strings.Join(cfg.AllowMethods, ","))
	h.Set(echo.HeaderAccessControlAllowHeaders, strings.Join(cfg.AllowHeaders, ","))
	if cfg.MaxAge > 0 {
		h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(cfg.MaxAge))
	}
}

func noContent(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

// PreflightMiddleware answers OPTIONS before authentication, since browsers never
// send credentials on a preflight. The team is taken from x-team-id or the teamId
// query parameter and only its allowedDomains are loaded.
func PreflightMiddleware(teams repository.TeamsRepository, cfg CORSConfig) echo.MiddlewareFunc {
	global := cfg.global()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodOptions {
				return next(c)
			}

			teamID := strings.TrimSpace(c.Request().Header.Get(HeaderTeamID))
			if teamID == "" {
				teamID = strings.TrimSpace(c.QueryParam("teamId"))
			}
			if teamID == "" {
				return global(noContent)(c)
			}
			if _, err := uuid.Parse(teamID); err != nil {
				return ErrForbidden("Unknown team")
			}

			domains, found, err := teams.GetAllowedDomains(c.Request().Context(), teamID)
			if err != nil {
				return ErrInternal("Failed to load team CORS policy", err)
			}
			if !found {
				return ErrForbidden("Unknown team")
			}
			if len(domains) == 0 {
				return global(noContent)(c)
			}

			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" {
				return noContent(c)
			}
			if !OriginAllowed(origin, domains) {
				return ErrForbidden("Origin not allowed")
			}
			cfg.reflect(c.Response().Header(), origin, true)
			return noContent(c)
		}
	}
}

// OriginGuardMiddleware enforces the authenticated team's allowedDomains. Requests
// without an Origin header are not browser requests and pass through. Rejections
// carry no CORS headers.
func OriginGuardMiddleware(cfg CORSConfig) echo.MiddlewareFunc {
	global := cfg.global()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			team := TeamFromCtx(c)
			if team == nil || len(team.AllowedDomains) == 0 {
				return global(next)(c)
			}

			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" {
				return next(c)
			}
			if !OriginAllowed(origin, team.AllowedDomains) {
				admit(stageOrigin, "rejected")
				return ErrForbidden("Origin not allowed")
			}
			admit(stageOrigin, "allowed")
			cfg.reflect(c.Response().Header(), origin, false)
			return next(c)
		}
	}
}

// OriginAllowed matches an Origin header against allow-list entries. An entry is a
// host ("app.example.com"), optionally with scheme or port, or a wildcard
// ("*.example.com") that matches subdomains but not the apex.
func OriginAllowed(origin string, allowed []string) bool {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	port := u.Port()

	for _, entry := range allowed {
		pattern, wantPort := splitDomainEntry(entry)
		if pattern == "" {
			continue
		}
		if wantPort != "" && wantPort != port {
			continue
		}
		if pattern == "*" {
			return true
		}
		if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
			if strings.HasPrefix(suffix, ".") && len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}

// splitDomainEntry strips scheme and path from an allow-list entry and returns its
// lowercased host pattern and optional port.
func splitDomainEntry(entry string) (string, string) {
	e := strings.ToLower(strings.TrimSpace(entry))
	if i := strings.Index(e, "://"); i >= 0 {
		e = e[i+3:]
	}
	if i := strings.IndexByte(e, '/'); i >= 0 {
		e = e[:i]
	}
	host, port := e, ""
	if h, p, err := net.SplitHostPort(e); err == nil {
		host, port = h, p
	}
	return strings.TrimSuffix(host, "."), port
}
