package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
)

// OriginAllowed rejects browser requests from origins outside allowedCSV.
// An empty list allows every origin.
func OriginAllowed(allowedCSV string) fiber.Handler {
	allowedOrigins := SplitCSV(strings.TrimSpace(allowedCSV))
	return func(c *fiber.Ctx) error {
		origin := strings.TrimSpace(c.Get("Origin"))
		if origin == "" || len(allowedOrigins) == 0 {
			return c.Next()
		}
		if !originAllowed(origin, allowedOrigins) {
			return httpx.Forbidden(c, apperr.CodeForbidden, "Origin not allowed")
		}
		return c.Next()
	}
}

func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}
