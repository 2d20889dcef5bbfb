package notify

import (
	"context"
	"sync"
	"time"

	"trade_core/pkg/logger"
)

type EventKind string

// Pipeline lifecycle events. Observability only: nothing in the
// delivery or execution contract depends on them being seen.
const (
	EventSignalGenerated EventKind = "signal_generated"
	EventTradeExecuted   EventKind = "trade_executed"
	EventExecutionFailed EventKind = "execution_failed"
	EventStrategyError   EventKind = "strategy_error"

	EventMessagePublished    EventKind = "message_published"
	EventMessageProcessed    EventKind = "message_processed"
	EventMessageRetried      EventKind = "message_retried"
	EventMessageFailed       EventKind = "message_failed"
	EventMessageDeadlettered EventKind = "message_deadlettered"
)

// Event carries enough context (ids, symbol, error) for logging and
// alerting without re-deriving engine state.
type Event struct {
	Kind       EventKind
	Topic      string
	MessageID  string
	StrategyID string
	AccountID  string
	Symbol     string
	Reason     string
	Detail     string
	Err        error
	At         time.Time
}

type Observer interface {
	Notify(ctx context.Context, ev Event)
}

// Bus fans one event out to every registered observer. Observers are
// isolated: a panicking observer never takes down the emitter or the
// other observers.
type Bus struct {
	mu  sync.RWMutex
	obs []Observer
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Register(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	b.obs = append(b.obs, o)
	b.mu.Unlock()
}

func (b *Bus) Emit(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	obs := make([]Observer, len(b.obs))
	copy(obs, b.obs)
	b.mu.RUnlock()

	for _, o := range obs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("notify: observer panic on %s: %v", ev.Kind, p)
				}
			}()
			o.Notify(ctx, ev)
		}()
	}
}
