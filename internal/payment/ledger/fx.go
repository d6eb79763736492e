package ledger

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
	"github.com/smallbiznis/academy/internal/payment/domain"
	"github.com/smallbiznis/academy/pkg/kv"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("payment.ledger",
	fx.Provide(New),
	fx.Invoke(RegisterJanitor),
)

type Params struct {
	fx.In

	Cfg   config.Config
	DB    *gorm.DB
	Clock clock.Clock
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

func New(p Params) (domain.Ledger, error) {
	p.Log.Info("webhook ledger ready", zap.String("backend", p.Cfg.Webhook.Ledger))
	switch p.Cfg.Webhook.Ledger {
	case config.BackendDatabase:
		return NewDatabase(p.DB, p.Clock), nil
	case config.BackendRedis:
		return NewRedis(p.Redis, p.Clock)
	default:
		return NewMemory(p.Clock), nil
	}
}

type JanitorParams struct {
	fx.In

	Lc     fx.Lifecycle
	Ledger domain.Ledger
	Clock  clock.Clock
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

func RegisterJanitor(p JanitorParams) {
	janitor := NewJanitor(p.Ledger, p.Clock, p.Log, kv.NewLocker(p.Redis), janitorInterval)
	p.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			janitor.Start()
			return nil
		},
		OnStop: janitor.Stop,
	})
}
