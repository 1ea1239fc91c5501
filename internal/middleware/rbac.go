package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/linkup-messaging-api/internal/utils"
)

// RequireRole lets the request through only when the token role set by
// JWTProtected is one of roles. Comparison is case-insensitive.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := strings.ToLower(strings.TrimSpace(role)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[normalizeRole(c.Locals(LocalUserRole))]; !ok {
			if c.Locals(LocalUserID) == nil {
				return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
			}
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
