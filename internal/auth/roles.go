package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/candidate-registry/internal/domain"
	apperrors "github.com/spec-kit/candidate-registry/pkg/util/errorutil"
)

// RequireAdmin rejects principals whose profile lacks the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Profile == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Profile.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("access denied")
		}
		return c.Next()
	}
}
