// Package cache owns the Redis client used for rate limiting and session revocation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"blogicum/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// errorCounter feeds failed commands into the redis error metric. A cache miss
// (redis.Nil) is not a failure.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(command string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.RedisErrors.WithLabelValues(command).Inc()
	}
}

// NewClient builds a client from either a redis:// URL or a bare host:port.
func NewClient(addr string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("empty redis address")
	}

	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	}
	opts.ClientName = "blogicum"
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second

	c := redis.NewClient(opts)
	c.AddHook(errorCounter{})
	return c, nil
}

// Connect returns a client that answered PING, or nil. Redis is optional:
// without it rate limits fail open and logout only drops the cookie.
func Connect(ctx context.Context, addr string) *redis.Client {
	c, err := NewClient(addr)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Redis disabled", slog.String("error", err.Error()))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "Redis unreachable, continuing without it",
			slog.String("addr", addr), slog.String("error", err.Error()))
		_ = c.Close()
		return nil
	}

	middleware.Logger.InfoContext(ctx, "Redis connected")
	return c
}
