package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Known roles. Every registered identity carries exactly one.
const (
	RolePatient      = "patient"
	RoleClinic       = "clinic"
	RoleJuniorDoctor = "junior_doctor"
	RoleSeniorDoctor = "senior_doctor"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RolePatient, RoleClinic, RoleJuniorDoctor, RoleSeniorDoctor:
		return true
	}
	return false
}

// IsDoctor reports whether r is a reviewing role.
func IsDoctor(r string) bool {
	return r == RoleJuniorDoctor || r == RoleSeniorDoctor
}

// RequireRole returns middleware that rejects callers whose role is not one of
// the given roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
