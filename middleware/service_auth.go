package middleware

import (
	"github.com/gofiber/fiber/v2"

	"leaps-tracker/logger"
)

// ServiceTokenMiddleware guards machine-to-machine routes with X-Service-Token.
// With no token configured the routes are disabled.
func ServiceTokenMiddleware(expectedToken string, log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expectedToken == "" {
			return deny(c, fiber.StatusServiceUnavailable, "DISABLED", "service integrations are not configured")
		}
		if !tokenEqual(c.Get("X-Service-Token"), expectedToken) {
			log.Warn("❌ [SERVICE_AUTH] invalid service token", "path", c.Path(), "ip", c.IP())
			return deny(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "invalid service token")
		}
		return c.Next()
	}
}
