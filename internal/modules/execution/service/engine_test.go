package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"trade_core/internal/exchange"
	"trade_core/internal/models"
	brokersvc "trade_core/internal/modules/broker/service"
	"trade_core/internal/notify"
	"trade_core/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeTrades struct {
	mu      sync.Mutex
	created []models.Trade
	open    []models.Trade
	ocoSet  map[string]string
	closed  map[string]models.TradeStatus
	failed  map[string]string
	orphans []models.Trade

	createErr error
}

func newFakeTrades() *fakeTrades {
	return &fakeTrades{
		ocoSet: map[string]string{},
		closed: map[string]models.TradeStatus{},
		failed: map[string]string{},
	}
}

func (f *fakeTrades) Create(_ context.Context, t models.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, t)
	return nil
}

func (f *fakeTrades) FindOpenTrades(_ context.Context, accountID, symbol string) ([]models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Trade
	for _, t := range f.open {
		if t.AccountID == accountID && t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTrades) FindOpenTradesByStrategy(_ context.Context, strategyID string) ([]models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Trade
	for _, t := range f.open {
		if t.StrategyID == strategyID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTrades) SetOcoOrderID(_ context.Context, tradeID, ocoOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ocoSet[tradeID] = ocoOrderID
	return nil
}

func (f *fakeTrades) CloseTrade(_ context.Context, tradeID string, status models.TradeStatus, exitPrice, pnl, fees float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[tradeID] = status
	return nil
}

func (f *fakeTrades) MarkFailed(_ context.Context, tradeID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[tradeID] = reason
	return nil
}

func (f *fakeTrades) FindOrphaned(_ context.Context, _ time.Time) ([]models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orphans, nil
}

type fakeClient struct {
	mu           sync.Mutex
	qty          float64
	fill         exchange.OrderResult
	ocoErr       error
	marketOrders []exchange.OrderRequest
	ocoOrders    []exchange.OcoRequest
	cancelled    []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		qty:  0.01,
		fill: exchange.OrderResult{OrderID: "ord-1", AvgPrice: 100, FilledQty: 0.01, Fee: 0.05},
	}
}

func (f *fakeClient) QuantityFromQuoteAmount(_ context.Context, _ string, _ float64) (float64, error) {
	return f.qty, nil
}

func (f *fakeClient) ValidateOrder(_ context.Context, _ exchange.OrderRequest) error { return nil }

func (f *fakeClient) PlaceMarketOrder(_ context.Context, _ models.Credentials, req exchange.OrderRequest) (exchange.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketOrders = append(f.marketOrders, req)
	fill := f.fill
	fill.FilledQty = req.Quantity
	return fill, nil
}

func (f *fakeClient) PlaceOcoOrder(_ context.Context, _ models.Credentials, req exchange.OcoRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ocoErr != nil {
		return "", f.ocoErr
	}
	f.ocoOrders = append(f.ocoOrders, req)
	return "oco-1", nil
}

func (f *fakeClient) CancelOcoOrder(_ context.Context, _ models.Credentials, _ string, ocoOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, ocoOrderID)
	return nil
}

type fakeCreds struct {
	err error
}

func (f *fakeCreds) GetCredentials(_ context.Context, accountID string) (models.Credentials, error) {
	if f.err != nil {
		return models.Credentials{}, f.err
	}
	return models.Credentials{AccountID: accountID, APIKey: "k", SecretKey: "s"}, nil
}

type capture struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *capture) Notify(_ context.Context, ev notify.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *capture) byKind(kind notify.EventKind) []notify.Event {
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

func newTestEngine(t *testing.T) (*ExecutionEngine, *fakeTrades, *fakeClient, *fakeCreds, *capture) {
	t.Helper()
	trades := newFakeTrades()
	client := newFakeClient()
	creds := &fakeCreds{}
	obs := &capture{}
	bus := notify.NewBus()
	bus.Register(obs)

	eng := NewExecutionEngine(trades, client, creds, NewLockTable(), bus)
	return eng, trades, client, creds, obs
}

func signalMsg(t *testing.T, sig models.TradeSignal) *models.BrokerMessage {
	t.Helper()
	raw, err := sonic.Marshal(sig)
	require.NoError(t, err)
	return &models.BrokerMessage{ID: "m1", Topic: models.TopicTradingSignal, Payload: raw}
}

func buySignal() models.TradeSignal {
	return models.TradeSignal{
		StrategyID: "s1",
		AccountID:  "a1",
		Symbol:     "BTC-USDT",
		Direction:  models.SideBuy,
		Price:      100,
		Params: models.RuntimeParams{
			PositionQuote: 100,
			StopPct:       1,
			TakeProfitRR:  2,
		},
	}
}

func TestEntryPlacesOrderAndOco(t *testing.T) {
	eng, trades, client, _, obs := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.OnTradeSignal(ctx, signalMsg(t, buySignal())))

	require.Len(t, client.marketOrders, 1)
	assert.Equal(t, models.SideBuy, client.marketOrders[0].Side)
	assert.Equal(t, 0.01, client.marketOrders[0].Quantity)

	require.Len(t, trades.created, 1)
	trade := trades.created[0]
	assert.Equal(t, models.TradeOpen, trade.Status)
	assert.Equal(t, 100.0, trade.EntryPrice)
	assert.Equal(t, "ord-1", trade.EntryOrderID)

	// SL 1% below entry, TP at 2R above
	require.Len(t, client.ocoOrders, 1)
	oco := client.ocoOrders[0]
	assert.Equal(t, models.SideSell, oco.Side)
	assert.Equal(t, trade.Quantity, oco.Quantity)
	assert.InDelta(t, 99.0, oco.StopLoss, 1e-9)
	assert.InDelta(t, 102.0, oco.TakeProfit, 1e-9)

	assert.Equal(t, "oco-1", trades.ocoSet[trade.ID])
	assert.Len(t, obs.byKind(notify.EventTradeExecuted), 1)
}

func TestEntryOcoFailureFlattensPosition(t *testing.T) {
	eng, trades, client, _, obs := newTestEngine(t)
	client.ocoErr = errors.New("algo rejected")
	ctx := context.Background()

	// the saga is complete even though the protective pair failed
	require.NoError(t, eng.OnTradeSignal(ctx, signalMsg(t, buySignal())))

	require.Len(t, client.marketOrders, 2)
	entry, closing := client.marketOrders[0], client.marketOrders[1]
	assert.Equal(t, models.SideBuy, entry.Side)
	assert.Equal(t, models.SideSell, closing.Side)
	assert.Equal(t, entry.Quantity, closing.Quantity)

	require.Len(t, trades.created, 1)
	assert.Equal(t, ReasonOcoPlacement, trades.failed[trades.created[0].ID])
	assert.Len(t, obs.byKind(notify.EventExecutionFailed), 1)
}

func TestLockedPairIsRejected(t *testing.T) {
	eng, _, client, _, obs := newTestEngine(t)
	ctx := context.Background()

	require.True(t, eng.locks.TryAcquire(Key("BTC-USDT", "a1")))
	defer eng.locks.Release(Key("BTC-USDT", "a1"))

	err := eng.OnTradeSignal(ctx, signalMsg(t, buySignal()))
	require.Error(t, err)
	assert.True(t, brokersvc.IsPermanent(err))
	assert.ErrorIs(t, err, ErrExecutionLocked)

	assert.Empty(t, client.marketOrders)
	failures := obs.byKind(notify.EventExecutionFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, ReasonExecutionLocked, failures[0].Reason)
}

func TestLockReleasedAfterExecution(t *testing.T) {
	eng, _, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.OnTradeSignal(ctx, signalMsg(t, buySignal())))
	assert.Equal(t, 0, eng.locks.Busy())
}

func TestMissingCredentialsFailsAttempt(t *testing.T) {
	eng, _, client, creds, obs := newTestEngine(t)
	creds.err = errors.New("no row")
	ctx := context.Background()

	// the broker's retry policy decides redelivery, so the error is not
	// marked permanent
	err := eng.OnTradeSignal(ctx, signalMsg(t, buySignal()))
	require.Error(t, err)
	assert.False(t, brokersvc.IsPermanent(err))
	assert.ErrorIs(t, err, ErrNoAPICredentials)

	assert.Empty(t, client.marketOrders)
	failures := obs.byKind(notify.EventExecutionFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, ReasonNoAPICredentials, failures[0].Reason)
}

func TestHoldSignalIsDropped(t *testing.T) {
	eng, _, client, _, _ := newTestEngine(t)

	sig := buySignal()
	sig.Direction = models.SideHold
	require.NoError(t, eng.OnTradeSignal(context.Background(), signalMsg(t, sig)))
	assert.Empty(t, client.marketOrders)
}

func TestMalformedSignalIsPermanent(t *testing.T) {
	eng, _, _, _, _ := newTestEngine(t)

	err := eng.OnTradeSignal(context.Background(), &models.BrokerMessage{Payload: []byte("junk")})
	require.Error(t, err)
	assert.True(t, brokersvc.IsPermanent(err))
}

func TestDuplicateLongIsSkipped(t *testing.T) {
	eng, trades, client, _, _ := newTestEngine(t)
	trades.open = []models.Trade{{
		ID: "t1", StrategyID: "s1", AccountID: "a1", Symbol: "BTC-USDT",
		Side: models.SideBuy, Status: models.TradeOpen,
	}}

	require.NoError(t, eng.OnTradeSignal(context.Background(), signalMsg(t, buySignal())))
	assert.Empty(t, client.marketOrders)
	assert.Empty(t, trades.created)
}

func TestExitClosesExactQuantity(t *testing.T) {
	eng, trades, client, _, obs := newTestEngine(t)
	trades.open = []models.Trade{{
		ID: "t1", StrategyID: "s1", AccountID: "a1", Symbol: "BTC-USDT",
		Side: models.SideBuy, Status: models.TradeOpen,
		OcoOrderID: "oco-9", EntryPrice: 95, Quantity: 0.42, Fees: 0.02,
	}}

	sig := buySignal()
	sig.Direction = models.SideSell
	require.NoError(t, eng.OnTradeSignal(context.Background(), signalMsg(t, sig)))

	// oco cancelled before the closing order goes out
	assert.Equal(t, []string{"oco-9"}, client.cancelled)

	require.Len(t, client.marketOrders, 1)
	assert.Equal(t, models.SideSell, client.marketOrders[0].Side)
	assert.Equal(t, 0.42, client.marketOrders[0].Quantity)

	assert.Equal(t, models.TradeClosedManual, trades.closed["t1"])
	assert.Len(t, obs.byKind(notify.EventTradeExecuted), 1)
}

func TestSellWithoutPositionIsShortRejected(t *testing.T) {
	eng, _, client, _, obs := newTestEngine(t)

	sig := buySignal()
	sig.Direction = models.SideSell
	err := eng.OnTradeSignal(context.Background(), signalMsg(t, sig))
	require.Error(t, err)
	assert.True(t, brokersvc.IsPermanent(err))
	assert.ErrorIs(t, err, ErrShortNotSupported)

	assert.Empty(t, client.marketOrders)
	failures := obs.byKind(notify.EventExecutionFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, ReasonShortNotSupported, failures[0].Reason)
}
