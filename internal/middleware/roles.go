package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// RequireRoles lets a request through only when the role claim set by JWT is
// one of roles.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("role").(string)
			if role == "" {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "token carries no role"})
			}
			if !slices.Contains(roles, role) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "role " + role + " may not use this route"})
			}
			return next(c)
		}
	}
}

// AdminGuard guards withdrawal review and ledger verification.
var AdminGuard = RequireRoles(RoleAdmin)
