package marketfeed

import (
	"context"

	"trade_core/internal/modules/marketfeed/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("marketfeed",
		fx.Provide(
			service.NewClient,
		),

		fx.Invoke(func(lc fx.Lifecycle, c *service.Client) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					c.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					c.Stop()
					return nil
				},
			})
		}),
	)
}
