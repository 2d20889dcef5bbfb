package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"trade_core/internal/cache"
	"trade_core/internal/models"
	brokersvc "trade_core/internal/modules/broker/service"
	"trade_core/internal/modules/config"
	"trade_core/internal/notify"
	"trade_core/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type captureObserver struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureObserver) Notify(_ context.Context, ev notify.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *captureObserver) byKind(kind notify.EventKind) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.DefaultTimeframe = "1m"
	cfg.DefaultPositionQuote = 100
	cfg.DefaultStopPct = 0.5
	cfg.DefaultTakeProfitRR = 3
	cfg.Execution.MaxRetries = 1
	cfg.Execution.RetryDelay = time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T) (*StrategyEngine, *brokersvc.Broker, *captureObserver) {
	t.Helper()
	brk := brokersvc.NewBroker(brokersvc.NewMemoryStore(), notify.NewBus(), 2*time.Millisecond)
	t.Cleanup(brk.Shutdown)

	obs := &captureObserver{}
	bus := notify.NewBus()
	bus.Register(obs)

	eng := NewStrategyEngine(brk, cache.NewMemory(), bus, testConfig())
	return eng, brk, obs
}

func TestStartStrategyDuplicateIsNoop(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	def := models.StrategyDefinition{ID: "s1", Symbol: "BTC-USDT", Name: "rsi"}
	require.NoError(t, eng.StartStrategy(ctx, def))
	require.NoError(t, eng.StartStrategy(ctx, def))

	assert.Equal(t, 1, eng.Running())
}

func TestStopStrategyUnknownIsNoop(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	assert.NoError(t, eng.StopStrategy(context.Background(), "ghost"))
}

func TestStartStopLifecycle(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.StartStrategy(ctx, models.StrategyDefinition{ID: "s1", Symbol: "BTC-USDT"}))
	require.NoError(t, eng.StartStrategy(ctx, models.StrategyDefinition{ID: "s2", Symbol: "ETH-USDT"}))
	assert.Equal(t, 2, eng.Running())

	require.NoError(t, eng.StopStrategy(ctx, "s1"))
	assert.Equal(t, 1, eng.Running())
}

func TestApplyDefaultsFillsRiskParams(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.StartStrategy(ctx, models.StrategyDefinition{ID: "s1", Symbol: "BTC-USDT"}))

	eng.mu.RLock()
	inst := eng.instances["s1"]
	eng.mu.RUnlock()
	require.NotNil(t, inst)
	assert.Equal(t, "1m", inst.def.Interval)
	assert.Equal(t, 100.0, inst.def.Params.PositionQuote)
	assert.Equal(t, 0.5, inst.def.Params.StopPct)
	assert.Equal(t, 3.0, inst.def.Params.TakeProfitRR)
}

type panickyEngine struct{}

func (panickyEngine) OnCandle(string, Candle) Result { panic("indicator blew up") }
func (panickyEngine) Dump(string) string             { return "" }

func TestEvalPanicIsolated(t *testing.T) {
	eng, _, obs := newTestEngine(t)
	ctx := context.Background()

	inst := &instance{
		def:  models.StrategyDefinition{ID: "s1", AccountID: "a1", Symbol: "BTC-USDT", Interval: "1m"},
		kind: models.StrategyRSI,
		eng:  panickyEngine{},
	}

	assert.NotPanics(t, func() {
		eng.evalOne(ctx, inst, models.CandleTick{Symbol: "BTC-USDT", Interval: "1m", Close: 100, IsFinal: true})
	})

	errs := obs.byKind(notify.EventStrategyError)
	require.Len(t, errs, 1)
	assert.Equal(t, "s1", errs[0].StrategyID)
}

func TestSignalFlowEndToEnd(t *testing.T) {
	eng, brk, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	t.Cleanup(eng.Stop)

	require.NoError(t, eng.StartStrategy(ctx, models.StrategyDefinition{
		ID:        "s1",
		AccountID: "a1",
		Name:      "rsi",
		Symbol:    "BTC-USDT",
		Interval:  "1m",
		Params:    models.RuntimeParams{RSIPeriod: 2},
	}))

	signals, cancel := brk.Listen(models.TopicTradingSignal, 4)
	defer cancel()

	for _, px := range []float64{100, 101, 102, 90} {
		_, err := brk.Publish(ctx, models.TopicMarketTickClosed, models.CandleTick{
			Symbol:    "BTC-USDT",
			Interval:  "1m",
			Close:     px,
			CloseTime: time.Now(),
			IsFinal:   true,
		}, "test")
		require.NoError(t, err)
	}

	select {
	case msg := <-signals:
		var sig models.TradeSignal
		require.NoError(t, sonic.Unmarshal(msg.Payload, &sig))
		assert.Equal(t, "s1", sig.StrategyID)
		assert.Equal(t, models.SideBuy, sig.Direction)
		assert.Equal(t, 90.0, sig.Price)
	case <-time.After(3 * time.Second):
		t.Fatal("no trade signal published")
	}

	assert.Equal(t, int64(1), eng.SignalCount())
}

func TestNonFinalBarsIgnored(t *testing.T) {
	eng, _, obs := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.StartStrategy(ctx, models.StrategyDefinition{
		ID: "s1", Name: "rsi", Symbol: "BTC-USDT", Interval: "1m",
		Params: models.RuntimeParams{RSIPeriod: 2},
	}))

	raw, err := sonic.Marshal(models.CandleTick{Symbol: "BTC-USDT", Interval: "1m", Close: 100, IsFinal: false})
	require.NoError(t, err)
	require.NoError(t, eng.onMarketData(ctx, &models.BrokerMessage{Payload: raw}))

	assert.Empty(t, obs.byKind(notify.EventSignalGenerated))
	assert.Equal(t, int64(0), eng.SignalCount())
}

func TestMalformedTickIsPermanent(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	err := eng.onMarketData(context.Background(), &models.BrokerMessage{Payload: []byte("not json")})
	require.Error(t, err)
	assert.True(t, brokersvc.IsPermanent(err))
}
