package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Cfg   config.Config
	Clock clock.Clock
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

func NewLimiter(p Params) (Limiter, error) {
	p.Log.Info("rate limiter ready", zap.String("backend", p.Cfg.RateLimit.Backend))
	if p.Cfg.RateLimit.Backend == config.BackendRedis {
		return NewRedisWindow(p.Redis, p.Clock)
	}
	return NewSlidingWindow(p.Clock), nil
}
