package middleware

import (
	"net"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// IPGuardMiddleware rejects callers outside the team's allowedIps. An empty list
// admits everyone.
func IPGuardMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			team := TeamFromCtx(c)
			if team == nil || len(team.AllowedIPs) == 0 {
				return next(c)
			}
			if !IPAllowed(ClientIP(c.Request()), team.AllowedIPs) {
				admit(stageIP, "rejected")
				return ErrForbidden("IP address not allowed")
			}
			admit(stageIP, "allowed")
			return next(c)
		}
	}
}

// ClientIP resolves the caller address: first X-Forwarded-For hop, then X-Real-IP,
// then the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IPAllowed matches ip against exact addresses and CIDR ranges. Unparseable
// entries never match.
func IPAllowed(ip string, allowed []string) bool {
	addr := parseIP(ip)
	if addr == nil {
		return false
	}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil && network.Contains(addr) {
				return true
			}
			continue
		}
		if want := parseIP(entry); want != nil && want.Equal(addr) {
			return true
		}
	}
	return false
}

func parseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	return net.ParseIP(s)
}
