package postgres

import (
	"context"
	"fmt"

	"trade_core/internal/exchange"
	"trade_core/internal/modules/config"
	executionsvc "trade_core/internal/modules/execution/service"
	strategysvc "trade_core/internal/modules/strategy/service"
	"trade_core/internal/repo/pg"
	"trade_core/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},

			fx.Annotate(pg.NewTradeRepo, fx.As(new(executionsvc.TradeRepository))),
			fx.Annotate(pg.NewStrategyRepo, fx.As(new(strategysvc.StrategyRepository))),
			fx.Annotate(pg.NewCredentialsRepo, fx.As(new(exchange.CredentialsProvider))),
		),

		fx.Invoke(func(lc fx.Lifecycle, txm *db.PgTxManager) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					txm.Close()
					return nil
				},
			})
		}),
	)
}
