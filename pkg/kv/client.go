// Package kv provides the shared Redis client and primitives built on it.
package kv

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/academy/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kv",
	fx.Provide(NewClient),
)

type Params struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger
}

// NewClient returns nil when no component is configured to use Redis.
func NewClient(p Params) *redis.Client {
	if !Required(p.Cfg) {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(p.Cfg.Redis.Addr),
		Password: strings.TrimSpace(p.Cfg.Redis.Password),
		DB:       p.Cfg.Redis.DB,
	})

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// shared state fails open, so a cold Redis must not block startup
				p.Log.Warn("redis ping failed", zap.String("addr", p.Cfg.Redis.Addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// Required reports whether any configured backend needs Redis.
func Required(cfg config.Config) bool {
	return cfg.RateLimit.Backend == config.BackendRedis || cfg.Webhook.Ledger == config.BackendRedis
}
