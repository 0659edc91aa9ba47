// Package ratelimit implements sliding-window request limiting keyed by caller.
//
// Memory keeps the window in process and suits a single instance. Redis keeps
// it in a sorted set so several instances share one budget per key.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"

	"city-raid/internal/config"
)

// Limiter decides whether one more request for key fits in the window.
// An allowed call counts against the window; a denied call does not.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Sweeper is implemented by limiters that hold per-key state needing cleanup.
type Sweeper interface {
	Sweep() int
}

// New builds the limiter selected by cfg.Backend. client is only used by the
// redis backend.
func New(cfg config.RateLimitConfig, client *redis.Client, clock clockwork.Clock) (Limiter, error) {
	switch cfg.Backend {
	case config.LimiterMemory, "":
		return NewMemory(cfg.Requests, cfg.Window, clock), nil
	case config.LimiterRedis:
		if client == nil {
			return nil, fmt.Errorf("redis limiter requires a redis client")
		}
		return NewRedis(client, cfg.Requests, cfg.Window, clock), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter backend %q", cfg.Backend)
	}
}
