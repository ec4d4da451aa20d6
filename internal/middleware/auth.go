package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
)

// AuthRequired resolves the caller from a Bearer token. When allowQuery is set the
// token may also come from ?token=, which browsers need for websocket upgrades.
func AuthRequired(verifier auth.TokenVerifier, allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var tokenString string
		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return httpx.Unauthorized(c, apperr.CodeAuth, "Invalid authorization format")
			}
			tokenString = parts[1]
		} else if allowQuery {
			tokenString = c.Query("token")
		}

		identity, err := verifier.VerifyToken(tokenString)
		if err != nil {
			return httpx.FromError(c, err)
		}

		httpx.SetIdentity(c, identity)
		c.Locals("userID", identity.UserID)
		c.Locals("role", string(identity.Role))

		return c.Next()
	}
}
