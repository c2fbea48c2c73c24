package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// RequireRole ensures the principal holds one of the allowed roles. Each
// operation declares its required roles here instead of branching per
// caller type inside the services.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewDomainError(apperrors.CodeAccessDenied, "insufficient role", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}
