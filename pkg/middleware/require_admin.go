package middleware

import (
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/auth"
)

// RequireAdmin ensures the authenticated operator has the admin role.
// It must run after OperatorAuth.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsAdmin(c) {
				return apierrors.ForbiddenError(c, "admin role required")
			}
			return next(c)
		}
	}
}

// IsAdmin reports whether the request was authenticated with the admin role.
func IsAdmin(c echo.Context) bool {
	role, _ := c.Get(ContextRole).(string)
	return role == auth.RoleAdmin
}
