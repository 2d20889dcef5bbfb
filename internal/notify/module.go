package notify

import (
	"trade_core/internal/modules/config"
	"trade_core/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) (*Bus, error) {
				bus := NewBus()
				bus.Register(NewLogObserver(logger.InfoLogger))

				if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
					tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
					if err != nil {
						return nil, err
					}
					bus.Register(tg)
				}
				return bus, nil
			},
		),
	)
}
