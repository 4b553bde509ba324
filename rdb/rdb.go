// Package rdb wraps Redis for the report cache and the shared rate limiter.
package rdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	cachePfx     = "leaps:cache:"
	cacheGenKey  = "leaps:cache:gen"
	rateLimitPfx = "leaps:rl:"
)

type Client struct {
	rdb *redis.Client
	now func() time.Time
}

func New(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	c := &Client{rdb: redis.NewClient(opts), now: time.Now}
	if err := c.rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return c, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// ── Cache ─────────────────────────────────────────────────────────────────────

// Keys are prefixed with a generation number. Invalidate bumps the generation so
// every older entry becomes unreachable and expires on its own TTL.

func (c *Client) generation(ctx context.Context) string {
	gen, err := c.rdb.Get(ctx, cacheGenKey).Result()
	if err != nil {
		return "0"
	}
	return gen
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, cachePfx+c.generation(ctx)+":"+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	c.rdb.Set(ctx, cachePfx+c.generation(ctx)+":"+key, val, ttl)
}

func (c *Client) Invalidate(ctx context.Context) {
	c.rdb.Incr(ctx, cacheGenKey)
}

// ── Rate limiting ─────────────────────────────────────────────────────────────

// RateLimit returns a fiber handler allowing max requests per fixed window for each
// key returned by keyFn. Redis errors let the request through.
func (c *Client) RateLimit(max int, window time.Duration, keyFn func(*fiber.Ctx) string) fiber.Handler {
	windowSecs := int64(window.Seconds())
	if windowSecs < 1 {
		windowSecs = 1
	}
	return func(ctx *fiber.Ctx) error {
		win := c.now().Unix() / windowSecs
		key := rateLimitPfx + keyFn(ctx) + ":" + strconv.FormatInt(win, 10)

		pipe := c.rdb.Pipeline()
		incr := pipe.Incr(ctx.UserContext(), key)
		pipe.Expire(ctx.UserContext(), key, window*2)
		if _, err := pipe.Exec(ctx.UserContext()); err != nil {
			return ctx.Next()
		}

		remaining := int64(max) - incr.Val()
		if remaining < 0 {
			remaining = 0
		}
		ctx.Set("X-RateLimit-Limit", strconv.Itoa(max))
		ctx.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if incr.Val() > int64(max) {
			ctx.Set(fiber.HeaderRetryAfter, strconv.FormatInt(windowSecs-c.now().Unix()%windowSecs, 10))
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
		}
		return ctx.Next()
	}
}
