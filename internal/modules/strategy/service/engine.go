package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"trade_core/internal/cache"
	"trade_core/internal/helper"
	"trade_core/internal/models"
	brokersvc "trade_core/internal/modules/broker/service"
	"trade_core/internal/modules/config"
	"trade_core/internal/notify"
	"trade_core/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// StrategyRepository loads persisted strategy definitions at startup.
type StrategyRepository interface {
	FindAllActive(ctx context.Context) ([]models.StrategyRecord, error)
	ToRuntimeParams(rec models.StrategyRecord) (models.StrategyDefinition, error)
}

// instance is one live strategy. There is never more than one per
// strategy id; its runtime state is only touched under its own mutex.
type instance struct {
	def  models.StrategyDefinition
	kind models.StrategyKind
	eng  Engine

	mu         sync.Mutex
	position   models.Position
	lastSignal models.Side
	signals    int64
}

// StrategyEngine owns the set of running instances, consumes closed
// bars from the broker and republishes qualifying evaluations as trade
// signals.
type StrategyEngine struct {
	brk   *brokersvc.Broker
	cache cache.SnapshotCache
	bus   *notify.Bus
	cfg   *config.Config

	mu        sync.RWMutex
	instances map[string]*instance
	sub       *brokersvc.Subscription

	signalCount atomic.Int64
	evalLatency atomic.Int64 // EWMA of fan-out latency, microseconds
}

func NewStrategyEngine(brk *brokersvc.Broker, snapCache cache.SnapshotCache, bus *notify.Bus, cfg *config.Config) *StrategyEngine {
	return &StrategyEngine{
		brk:       brk,
		cache:     snapCache,
		bus:       bus,
		cfg:       cfg,
		instances: make(map[string]*instance),
	}
}

// Start wires the market-data subscription. A broker failure here is
// fatal to startup by contract.
func (e *StrategyEngine) Start(_ context.Context) error {
	sub, err := e.brk.Subscribe(models.TopicMarketTickClosed, e.onMarketData, brokersvc.SubscribeOptions{
		MaxRetries:      e.cfg.Execution.MaxRetries,
		RetryDelay:      e.cfg.Execution.RetryDelay,
		MaxRetryDelay:   e.cfg.Execution.MaxRetryDelay,
		DeadLetterTopic: models.TopicMarketTickDLQ,
	})
	if err != nil {
		return errors.Wrap(err, "strategy: subscribe market data")
	}
	e.sub = sub
	return nil
}

func (e *StrategyEngine) Stop() {
	if e.sub != nil {
		e.sub.Cancel()
	}
}

// LoadActive starts every persisted active strategy.
func (e *StrategyEngine) LoadActive(ctx context.Context, repo StrategyRepository) error {
	recs, err := repo.FindAllActive(ctx)
	if err != nil {
		return errors.Wrap(err, "strategy: load active")
	}
	for _, rec := range recs {
		def, convErr := repo.ToRuntimeParams(rec)
		if convErr != nil {
			logger.Error("strategy: bad record %s: %v", rec.ID, convErr)
			continue
		}
		if startErr := e.StartStrategy(ctx, def); startErr != nil {
			logger.Error("strategy: start %s: %v", def.ID, startErr)
		}
	}
	return nil
}

// StartStrategy resolves, constructs and registers one instance.
// Starting an already-running id is a warn-level no-op.
func (e *StrategyEngine) StartStrategy(ctx context.Context, def models.StrategyDefinition) error {
	e.applyDefaults(&def)

	e.mu.Lock()
	if _, ok := e.instances[def.ID]; ok {
		e.mu.Unlock()
		logger.Warn("strategy: %s already running, start ignored", def.ID)
		return nil
	}
	kind, eng := NewEngine(def)
	inst := &instance{
		def:      def,
		kind:     kind,
		eng:      eng,
		position: models.PositionNone,
	}
	e.instances[def.ID] = inst
	e.mu.Unlock()

	e.writeSnapshot(ctx, inst)
	logger.Info("strategy: %s started (%s %s/%s)", def.ID, kind, def.Symbol, def.Interval)
	return nil
}

// StopStrategy is a no-op for unknown ids.
func (e *StrategyEngine) StopStrategy(ctx context.Context, id string) error {
	e.mu.Lock()
	_, ok := e.instances[id]
	if ok {
		delete(e.instances, id)
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}

	if err := e.cache.Evict(ctx, id); err != nil {
		logger.Error("strategy: evict snapshot %s: %v", id, err)
	}
	logger.Info("strategy: %s stopped", id)
	return nil
}

func (e *StrategyEngine) Running() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.instances)
}

func (e *StrategyEngine) SignalCount() int64 { return e.signalCount.Load() }

func (e *StrategyEngine) EvalLatency() time.Duration {
	return time.Duration(e.evalLatency.Load()) * time.Microsecond
}

func (e *StrategyEngine) applyDefaults(def *models.StrategyDefinition) {
	if def.Interval == "" {
		def.Interval = e.cfg.DefaultTimeframe
	}
	p := &def.Params
	if p.PositionQuote <= 0 {
		p.PositionQuote = e.cfg.DefaultPositionQuote
	}
	if p.StopPct <= 0 {
		p.StopPct = e.cfg.DefaultStopPct
	}
	if p.TakeProfitRR <= 0 {
		p.TakeProfitRR = e.cfg.DefaultTakeProfitRR
	}
}

// onMarketData fans one closed bar out to every matching instance.
// Evaluations run concurrently; a failing instance is reported and
// never blocks the rest.
func (e *StrategyEngine) onMarketData(ctx context.Context, msg *models.BrokerMessage) error {
	var tick models.CandleTick
	if err := sonic.Unmarshal(msg.Payload, &tick); err != nil {
		return brokersvc.Permanent(errors.Wrap(err, "strategy: decode tick"))
	}
	if !tick.IsFinal {
		return nil
	}

	e.mu.RLock()
	matched := make([]*instance, 0, len(e.instances))
	for _, inst := range e.instances {
		if inst.def.Symbol == tick.Symbol && helper.NormTF(inst.def.Interval) == helper.NormTF(tick.Interval) {
			matched = append(matched, inst)
		}
	}
	e.mu.RUnlock()

	if len(matched) == 0 {
		return nil
	}

	started := time.Now()
	var wg sync.WaitGroup
	for _, inst := range matched {
		wg.Add(1)
		go func(inst *instance) {
			defer wg.Done()
			e.evalOne(ctx, inst, tick)
		}(inst)
	}
	wg.Wait()

	e.observeLatency(time.Since(started))
	return nil
}

func (e *StrategyEngine) evalOne(ctx context.Context, inst *instance, tick models.CandleTick) {
	defer func() {
		if p := recover(); p != nil {
			e.bus.Emit(ctx, notify.Event{
				Kind:       notify.EventStrategyError,
				StrategyID: inst.def.ID,
				AccountID:  inst.def.AccountID,
				Symbol:     tick.Symbol,
				Err:        errors.Errorf("evaluation panic: %v", p),
			})
		}
	}()

	res := inst.eng.OnCandle(tick.Symbol, Candle{
		Open:   tick.Open,
		High:   tick.High,
		Low:    tick.Low,
		Close:  tick.Close,
		Volume: tick.Volume,
	})

	if res.Side != models.SideHold && res.Side != "" {
		e.onInstanceSignal(ctx, inst, res)
	}

	e.writeSnapshot(ctx, inst)
}

// onInstanceSignal republishes a non-HOLD evaluation as a TradeSignal.
func (e *StrategyEngine) onInstanceSignal(ctx context.Context, inst *instance, res Result) {
	sig := models.TradeSignal{
		StrategyID: inst.def.ID,
		AccountID:  inst.def.AccountID,
		Symbol:     inst.def.Symbol,
		Direction:  res.Side,
		Strength:   res.Strength,
		Price:      res.Price,
		Reason:     res.Reason,
		Params:     inst.def.Params,
	}

	if _, err := e.brk.Publish(ctx, models.TopicTradingSignal, sig, "strategy-engine"); err != nil {
		e.bus.Emit(ctx, notify.Event{
			Kind:       notify.EventStrategyError,
			StrategyID: inst.def.ID,
			AccountID:  inst.def.AccountID,
			Symbol:     inst.def.Symbol,
			Err:        errors.Wrap(err, "publish signal"),
		})
		return
	}

	inst.mu.Lock()
	inst.lastSignal = res.Side
	inst.signals++
	switch res.Side {
	case models.SideBuy:
		inst.position = models.PositionLong
	case models.SideSell:
		inst.position = models.PositionNone
	}
	inst.mu.Unlock()

	e.signalCount.Add(1)
	e.bus.Emit(ctx, notify.Event{
		Kind:       notify.EventSignalGenerated,
		StrategyID: inst.def.ID,
		AccountID:  inst.def.AccountID,
		Symbol:     inst.def.Symbol,
		Detail:     string(res.Side) + " " + res.Reason,
	})
}

func (e *StrategyEngine) writeSnapshot(ctx context.Context, inst *instance) {
	inst.mu.Lock()
	snap := models.InstanceSnapshot{
		StrategyID:  inst.def.ID,
		AccountID:   inst.def.AccountID,
		Symbol:      inst.def.Symbol,
		Interval:    inst.def.Interval,
		Kind:        string(inst.kind),
		Position:    inst.position,
		LastSignal:  inst.lastSignal,
		SignalCount: inst.signals,
		Indicators:  inst.eng.Dump(inst.def.Symbol),
		UpdatedAt:   time.Now(),
	}
	inst.mu.Unlock()

	if err := e.cache.Put(ctx, snap.StrategyID, snap); err != nil {
		logger.Error("strategy: snapshot %s: %v", snap.StrategyID, err)
	}
}

func (e *StrategyEngine) observeLatency(d time.Duration) {
	lat := d.Microseconds()
	for {
		old := e.evalLatency.Load()
		next := old + (lat-old)/8
		if old == 0 {
			next = lat
		}
		if e.evalLatency.CompareAndSwap(old, next) {
			return
		}
	}
}
