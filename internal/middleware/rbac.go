package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

// RequireAnyRole admits callers holding one of roles. It must run after AuthRequired.
func RequireAnyRole(roles ...models.Role) fiber.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *fiber.Ctx) error {
		identity, err := httpx.CurrentIdentity(c)
		if err != nil {
			return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
		}
		if !allowed[identity.Role] {
			return httpx.Forbidden(c, apperr.CodeForbidden, "Insufficient permissions")
		}
		return c.Next()
	}
}
