package middleware

import (
	"crypto/subtle"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// InternalSecretMiddleware guards operator endpoints with a shared bearer secret.
// An unset secret disables the endpoints instead of leaving them open.
func InternalSecretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return ErrUnavailable("Internal API is not configured")
			}
			token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				return ErrUnauthorized("Missing bearer token")
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				return ErrForbidden("Invalid internal API secret")
			}
			return next(c)
		}
	}
}
