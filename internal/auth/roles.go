package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-support/internal/domain"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// RequireRoles ensures the principal carries one of the allowed roles.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireStaff admits agents and super admins.
func RequireStaff() fiber.Handler {
	return RequireRoles(domain.RoleAgent, domain.RoleSuperAdmin)
}

// RequireSuperAdmin admits super admins only.
func RequireSuperAdmin() fiber.Handler {
	return RequireRoles(domain.RoleSuperAdmin)
}

// RequireAnyRole ensures caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return RequireRoles()
}
