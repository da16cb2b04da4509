package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/auth"
)

// Context keys set by the auth middleware.
const (
	ContextTenantID = "tenant_id"
	ContextRole     = "role"
	ContextSubject  = "subject"
	ContextRunner   = "runner"
)

// RunnerSecretHeader carries the runner shared secret.
const RunnerSecretHeader = "X-Runner-Secret"

// OperatorAuth requires a Bearer JWT whose role grants operator access and
// stores its tenant, role and subject in the context.
func OperatorAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return apierrors.UnauthorizedError(c, "missing authorization header")
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				return apierrors.UnauthorizedError(c, "malformed authorization header")
			}

			claims, err := auth.ValidateJWT(parts[1], secret)
			if err != nil {
				return apierrors.UnauthorizedError(c, err.Error())
			}
			if !claims.IsOperator() {
				return apierrors.UnauthorizedError(c, "role "+claims.Role+" is not an operator")
			}

			c.Set(ContextTenantID, claims.TenantID)
			c.Set(ContextRole, claims.Role)
			c.Set(ContextSubject, claims.Subject)

			return next(c)
		}
	}
}

// RunnerAuth requires the X-Runner-Secret header to match secretHash. The
// failure response is the same one OperatorAuth returns.
func RunnerAuth(secretHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !auth.CheckSecret(secretHash, c.Request().Header.Get(RunnerSecretHeader)) {
				return apierrors.UnauthorizedError(c, "runner secret mismatch")
			}
			c.Set(ContextRunner, true)
			return next(c)
		}
	}
}

// TenantID returns the tenant set by OperatorAuth.
func TenantID(c echo.Context) (string, bool) {
	id, ok := c.Get(ContextTenantID).(string)
	return id, ok && id != ""
}
