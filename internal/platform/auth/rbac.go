package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const RoleAdmin = "admin"

// Permissions checked by the HTTP surface.
const (
	PermAssessmentCreate = "assessment:create"
	PermAssessmentRead   = "assessment:read"
	PermGovernanceAdmin  = "governance:admin"
	PermAuditRead        = "audit:read"
)

// rolePermissions grants permissions to well-known roles in addition to the
// token's permissions claim.
var rolePermissions = map[string][]string{
	"clinician":        {PermAssessmentCreate, PermAssessmentRead},
	"reviewer":         {PermAssessmentRead},
	"governance_admin": {PermGovernanceAdmin, PermAuditRead},
	"auditor":          {PermAuditRead},
}

// AllPermissions lists every permission.
func AllPermissions() []string {
	return []string{PermAssessmentCreate, PermAssessmentRead, PermGovernanceAdmin, PermAuditRead}
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequirePermission returns middleware that checks if the user holds at least
// one of the given permissions, directly or through a role. Admins pass.
func RequirePermission(perms ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			for _, p := range perms {
				if HasPermission(RolesFromContext(ctx), PermissionsFromContext(ctx), p) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required permission: %s", strings.Join(perms, " or ")))
		}
	}
}

// HasPermission reports whether the roles and explicit permissions grant perm.
func HasPermission(roles, granted []string, perm string) bool {
	for _, g := range granted {
		if g == perm {
			return true
		}
	}
	for _, r := range roles {
		if r == RoleAdmin {
			return true
		}
		for _, g := range rolePermissions[r] {
			if g == perm {
				return true
			}
		}
	}
	return false
}
