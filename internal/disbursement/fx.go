package disbursement

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("disbursement",
	fx.Provide(
		fx.Annotate(
			NewDefaultRegistry,
			fx.As(new(Dispatcher)),
		),
	),
)

// NewDefaultRegistry registers the supported payout methods. Every rail
// currently confirms out of band, so each is served by a LogDispatcher.
func NewDefaultRegistry(log *zap.Logger) *Registry {
	return NewRegistry(
		NewLogDispatcher("paypal", log),
		NewLogDispatcher("bank_transfer", log),
	)
}
