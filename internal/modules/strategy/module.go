package strategy

import (
	"context"

	"trade_core/internal/cache"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/strategy/service"
	"trade_core/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			func(cfg *config.Config) cache.SnapshotCache {
				if cfg.Redis.Addr != "" {
					return cache.NewRedis(cfg.Redis.Addr, cfg.Redis.SnapshotTTL)
				}
				return cache.NewMemory()
			},
			service.NewStrategyEngine,
		),

		fx.Invoke(func(lc fx.Lifecycle, eng *service.StrategyEngine, repo service.StrategyRepository) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := eng.Start(ctx); err != nil {
						return err
					}
					// definitions are best-effort at boot; a broken row
					// must not keep the pipeline down
					if err := eng.LoadActive(ctx, repo); err != nil {
						logger.Error("strategy: %v", err)
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					eng.Stop()
					return nil
				},
			})
		}),
	)
}
