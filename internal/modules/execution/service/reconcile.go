package service

import (
	"context"
	"strconv"
	"time"

	"trade_core/internal/notify"
	"trade_core/pkg/logger"
)

// Reconciler periodically sweeps for OPEN trades with no protective OCO
// pair and fails them. Such rows mean the entry filled but the process
// died before (or while) the OCO was placed; the exchange-side position
// may still exist, so the sweep notifies for manual follow-up.
// TODO: query exchange order state and re-place the OCO instead of
// failing outright.
type Reconciler struct {
	trades   TradeRepository
	bus      *notify.Bus
	after    time.Duration
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(trades TradeRepository, bus *notify.Bus, after, interval time.Duration) *Reconciler {
	return &Reconciler{
		trades:   trades,
		bus:      bus,
		after:    after,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go func() {
		defer close(r.done)

		select {
		case <-time.After(r.after):
		case <-ctx.Done():
			return
		}
		r.sweep(ctx)

		tick := time.NewTicker(r.interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				r.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.after)
	orphans, err := r.trades.FindOrphaned(ctx, cutoff)
	if err != nil {
		logger.Error("reconcile: find orphaned: %v", err)
		return
	}

	for _, t := range orphans {
		if err := r.trades.MarkFailed(ctx, t.ID, ReasonOrphanedTrade); err != nil {
			logger.Error("reconcile: mark failed %s: %v", t.ID, err)
			continue
		}
		logger.Warn("reconcile: trade %s (%s/%s) had no oco pair, marked failed", t.ID, t.Symbol, t.AccountID)
		r.bus.Emit(ctx, notify.Event{
			Kind:       notify.EventExecutionFailed,
			StrategyID: t.StrategyID,
			AccountID:  t.AccountID,
			Symbol:     t.Symbol,
			Reason:     ReasonOrphanedTrade,
		})
	}
}

func formatTrade(qty, price float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64) + " @ " + strconv.FormatFloat(price, 'f', -1, 64)
}
