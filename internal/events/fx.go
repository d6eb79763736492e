package events

import (
	"context"

	"github.com/smallbiznis/academy/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger
}

func New(p Params) (Publisher, error) {
	var (
		pub Publisher
		err error
	)
	switch p.Cfg.Events.Backend {
	case config.EventsKafka:
		pub, err = NewKafkaPublisher(p.Cfg.Events.KafkaBrokers, p.Cfg.Events.KafkaTopic)
	case config.EventsRabbitMQ:
		pub, err = NewRabbitMQPublisher(p.Cfg.Events.RabbitMQURL, p.Cfg.Events.RabbitMQExchange)
	default:
		pub = NewLogPublisher(p.Log)
	}
	if err != nil {
		return nil, err
	}

	p.Log.Info("events publisher ready", zap.String("backend", p.Cfg.Events.Backend))
	p.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}
