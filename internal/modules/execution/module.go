package execution

import (
	"context"

	"trade_core/internal/exchange"
	"trade_core/internal/models"
	brokersvc "trade_core/internal/modules/broker/service"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/execution/service"
	"trade_core/internal/notify"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			service.NewLockTable,
			func() exchange.TradingClient { return exchange.NewOKX() },
			service.NewExecutionEngine,
			func(trades service.TradeRepository, bus *notify.Bus, cfg *config.Config) *service.Reconciler {
				return service.NewReconciler(trades, bus, cfg.Execution.ReconcileAfter, cfg.Execution.ReconcileInterval)
			},
		),

		fx.Invoke(func(lc fx.Lifecycle, eng *service.ExecutionEngine, rec *service.Reconciler, brk *brokersvc.Broker, cfg *config.Config) {
			var sub *brokersvc.Subscription
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					s, err := brk.Subscribe(models.TopicTradingSignal, eng.OnTradeSignal, brokersvc.SubscribeOptions{
						MaxRetries:      cfg.Execution.MaxRetries,
						RetryDelay:      cfg.Execution.RetryDelay,
						MaxRetryDelay:   cfg.Execution.MaxRetryDelay,
						DeadLetterTopic: models.TopicTradingSignalDLQ,
					})
					if err != nil {
						return err
					}
					sub = s
					rec.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					rec.Stop()
					if sub != nil {
						sub.Cancel()
					}
					return nil
				},
			})
		}),
	)
}
