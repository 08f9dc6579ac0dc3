package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// RateLimiter counts requests per resource and caller in Redis fixed windows.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewRateLimiter returns a limiter backed by rdb. Limiting is disabled in the
// test, development and stress environments so local workflows are not throttled.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "test", "development", "stress":
		return &RateLimiter{rdb: rdb, enabled: false}
	}
	return &RateLimiter{rdb: rdb, enabled: true}
}

// Enabled reports whether requests are actually counted.
func (l *RateLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Check reports whether one more request for resource by id fits into the window.
func (l *RateLimiter) Check(ctx context.Context, resource, id string, limit int, window time.Duration) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	if l.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		l.rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// Handler returns a Fiber middleware enforcing limit requests per window for the named resource.
// It keys by authenticated userID when present, otherwise by remote IP.
// onLimit renders the rejection; nil means a JSON 429.
func (l *RateLimiter) Handler(name string, limit int, window time.Duration, onLimit fiber.Handler) fiber.Handler {
	return l.HandlerWithPolicy(name, limit, window, FailOpen, onLimit)
}

// HandlerWithPolicy is Handler with an explicit failure policy.
func (l *RateLimiter) HandlerWithPolicy(name string, limit int, window time.Duration, policy FailPolicy, onLimit fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Only writes are limited; rendering a form is free.
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
			return c.Next()
		}

		var id string
		if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
			id = fmt.Sprintf("user:%d", uid)
		} else {
			id = "ip:" + c.IP()
		}

		allowed, err := l.Check(c.UserContext(), name, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit store unavailable, failing closed",
					slog.String("resource", name), slog.String("error", err.Error()))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		if !allowed {
			RateLimitRejections.WithLabelValues(name).Inc()
			if onLimit != nil {
				return onLimit(c)
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
