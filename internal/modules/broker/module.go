package broker

import (
	"context"

	"trade_core/internal/modules/broker/service"
	"trade_core/internal/modules/config"
	"trade_core/internal/notify"
	"trade_core/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(
			func(cfg *config.Config, txm *db.PgTxManager) service.Store {
				if cfg.Broker.Durable {
					return service.NewPgStore(txm)
				}
				return service.NewMemoryStore()
			},
			func(store service.Store, bus *notify.Bus, cfg *config.Config) *service.Broker {
				return service.NewBroker(store, bus, cfg.Broker.PollInterval)
			},
		),

		fx.Invoke(func(lc fx.Lifecycle, brk *service.Broker) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					brk.Shutdown()
					return nil
				},
			})
		}),
	)
}
