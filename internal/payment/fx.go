package payment

import (
	"github.com/smallbiznis/academy/internal/payment/adapters/stripe"
	"github.com/smallbiznis/academy/internal/payment/domain"
	"github.com/smallbiznis/academy/internal/payment/ledger"
	"github.com/smallbiznis/academy/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(stripe.New),
	fx.Provide(
		func(a *stripe.Adapter) domain.Verifier { return a },
		func(a *stripe.Adapter) domain.Gateway { return a },
	),
	ledger.Module,
	fx.Provide(webhook.NewService),
)
