package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogObserver writes every lifecycle event to the structured log. It is
// always registered so the pipeline is observable without any external
// sink configured.
type LogObserver struct {
	log *zap.Logger
}

func NewLogObserver(log *zap.Logger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) Notify(_ context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
	}
	if ev.Topic != "" {
		fields = append(fields, zap.String("topic", ev.Topic))
	}
	if ev.MessageID != "" {
		fields = append(fields, zap.String("messageId", ev.MessageID))
	}
	if ev.StrategyID != "" {
		fields = append(fields, zap.String("strategyId", ev.StrategyID))
	}
	if ev.AccountID != "" {
		fields = append(fields, zap.String("accountId", ev.AccountID))
	}
	if ev.Symbol != "" {
		fields = append(fields, zap.String("symbol", ev.Symbol))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}

	switch ev.Kind {
	case EventExecutionFailed, EventStrategyError, EventMessageFailed, EventMessageDeadlettered:
		o.log.Warn("pipeline event", fields...)
	default:
		o.log.Info("pipeline event", fields...)
	}
}
