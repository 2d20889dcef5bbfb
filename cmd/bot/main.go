package main

import (
	"context"
	"log"

	"trade_core/internal/modules/broker"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/execution"
	"trade_core/internal/modules/health"
	"trade_core/internal/modules/marketfeed"
	"trade_core/internal/modules/postgres"
	"trade_core/internal/modules/strategy"
	"trade_core/internal/notify"
	"trade_core/pkg/logger"
	"trade_core/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	logger.SetServiceName("trade-core")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		notify.Module(),
		broker.Module(),
		marketfeed.Module(),
		strategy.Module(),
		execution.Module(),
		health.Module(),

		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) {
			if !cfg.Tracing.Enabled {
				return
			}
			tracing.SetServiceName("trade-core")
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Tracing.Host,
				Port: cfg.Tracing.Port,
			})
			if err != nil {
				logger.Error("tracing init: %v", err)
				return
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					closeTracer()
					return nil
				},
			})
		}),
	)

	app.Run()
}
