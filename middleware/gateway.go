package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"leaps-tracker/logger"
)

// deny writes the error envelope and stops the chain.
func deny(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg, "code": code})
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// GatewayAuthMiddleware validates the Bearer token from the Gateway. Paths in open
// are reachable without it.
func GatewayAuthMiddleware(expectedToken string, log logger.Logger, open ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, p := range open {
			if c.Path() == p {
				return c.Next()
			}
		}
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Warn("🚫 [GATEWAY_AUTH] missing Authorization header", "path", c.Path())
			return deny(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "gateway authentication token missing")
		}

		// accept "Bearer <token>" or the raw token
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if !tokenEqual(token, expectedToken) {
			log.Warn("❌ [GATEWAY_AUTH] invalid token", "path", c.Path())
			return deny(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "invalid gateway authentication token")
		}
		return c.Next()
	}
}
