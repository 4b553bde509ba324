package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"leaps-tracker/logger"
	"leaps-tracker/models"
	"leaps-tracker/services"
)

const (
	localUserID   = "user_id"
	localUserRole = "user_role"
)

// RoleResolver loads the stored role of a user.
type RoleResolver interface {
	Role(ctx context.Context, userID string) (models.Role, error)
}

// UserContextMiddleware reads the caller identity set by the Gateway and attaches the
// caller's stored role. Roles are never taken from request headers.
func UserContextMiddleware(roles RoleResolver, log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Warn("❌ [USER_CTX] X-User-ID missing", "path", c.Path())
			return deny(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing X-User-ID, request must come through gateway with auth context")
		}

		role, err := roles.Role(c.UserContext(), userID)
		if errors.Is(err, services.ErrNotFound) {
			return deny(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unknown user")
		}
		if err != nil {
			log.Error("[USER_CTX] role lookup failed", err, "user", userID)
			return deny(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRole, role)
		log.Debug("👤 [USER_CTX]", "user", userID, "role", role, "path", c.Path())
		return c.Next()
	}
}

// RequireRole rejects callers below min. Mount after UserContextMiddleware.
func RequireRole(min models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !UserRole(c).AtLeast(min) {
			return deny(c, fiber.StatusForbidden, "FORBIDDEN", "permission denied")
		}
		return c.Next()
	}
}

// UserID returns the caller id attached by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func UserRole(c *fiber.Ctx) models.Role {
	role, _ := c.Locals(localUserRole).(models.Role)
	return role
}
