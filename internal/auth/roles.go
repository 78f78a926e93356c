package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// RequireRole ensures the caller has one of the allowed roles.
func RequireRole(allowed ...domain.UserRole) fiber.Handler {
	allowedSet := make(map[domain.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[user.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireStaff ensures the caller is an agent or admin.
func RequireStaff() fiber.Handler {
	return RequireRole(domain.UserRoleAgent, domain.UserRoleAdmin)
}

// RequireAdmin ensures the caller is an admin.
func RequireAdmin() fiber.Handler {
	return RequireRole(domain.UserRoleAdmin)
}
