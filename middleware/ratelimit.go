package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitKey identifies the caller: gateway user id, else client IP.
func RateLimitKey(c *fiber.Ctx) string {
	if id := c.Get("X-User-ID"); id != "" {
		return "u:" + id
	}
	return "ip:" + c.IP()
}

// SharedLimiter is a rate limiter whose counters live outside the process.
type SharedLimiter interface {
	RateLimit(max int, window time.Duration, keyFn func(*fiber.Ctx) string) fiber.Handler
}

// RateLimit uses the shared limiter when given, otherwise fiber's in-memory limiter.
func RateLimit(shared SharedLimiter, max int, window time.Duration) fiber.Handler {
	if shared != nil {
		return shared.RateLimit(max, window, RateLimitKey)
	}
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: RateLimitKey,
		LimitReached: func(c *fiber.Ctx) error {
			return deny(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		},
	})
}
