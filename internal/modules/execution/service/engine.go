package service

import (
	"context"
	"time"

	"trade_core/internal/exchange"
	"trade_core/internal/models"
	brokersvc "trade_core/internal/modules/broker/service"
	"trade_core/internal/notify"
	"trade_core/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TradeRepository is the persistence surface the execution engine needs.
type TradeRepository interface {
	Create(ctx context.Context, trade models.Trade) error
	FindOpenTrades(ctx context.Context, accountID, symbol string) ([]models.Trade, error)
	FindOpenTradesByStrategy(ctx context.Context, strategyID string) ([]models.Trade, error)
	SetOcoOrderID(ctx context.Context, tradeID, ocoOrderID string) error
	CloseTrade(ctx context.Context, tradeID string, status models.TradeStatus, exitPrice, pnl, fees float64) error
	MarkFailed(ctx context.Context, tradeID, reason string) error
	FindOrphaned(ctx context.Context, olderThan time.Time) ([]models.Trade, error)
}

// ExecutionEngine turns trade signals into exchange orders and owns the
// resulting trade records through their lifecycle.
type ExecutionEngine struct {
	trades TradeRepository
	client exchange.TradingClient
	creds  exchange.CredentialsProvider
	locks  *LockTable
	bus    *notify.Bus
}

func NewExecutionEngine(
	trades TradeRepository,
	client exchange.TradingClient,
	creds exchange.CredentialsProvider,
	locks *LockTable,
	bus *notify.Bus,
) *ExecutionEngine {
	return &ExecutionEngine{
		trades: trades,
		client: client,
		creds:  creds,
		locks:  locks,
		bus:    bus,
	}
}

// OnTradeSignal is the broker handler for trading.signal.generated.
// HOLD signals are dropped. One (symbol, account) pair executes at most
// one signal at a time; a busy pair is rejected permanently rather than
// retried, because by the time a retry fires the market context of the
// signal is stale.
func (e *ExecutionEngine) OnTradeSignal(ctx context.Context, msg *models.BrokerMessage) error {
	var sig models.TradeSignal
	if err := sonic.Unmarshal(msg.Payload, &sig); err != nil {
		return brokersvc.Permanent(errors.Wrap(err, "execution: decode signal"))
	}

	if sig.Direction == models.SideHold || sig.Direction == "" {
		return nil
	}

	key := Key(sig.Symbol, sig.AccountID)
	if !e.locks.TryAcquire(key) {
		e.emitFailure(ctx, sig, ReasonExecutionLocked, ErrExecutionLocked)
		return brokersvc.Permanent(ErrExecutionLocked)
	}
	defer e.locks.Release(key)

	// terminal for this attempt; redelivery is the broker's call
	creds, err := e.creds.GetCredentials(ctx, sig.AccountID)
	if err != nil {
		e.emitFailure(ctx, sig, ReasonNoAPICredentials, err)
		return errors.Wrap(ErrNoAPICredentials, sig.AccountID)
	}

	switch sig.Direction {
	case models.SideBuy:
		return e.enter(ctx, creds, sig)
	case models.SideSell:
		return e.exit(ctx, creds, sig)
	default:
		return brokersvc.Permanent(errors.Errorf("execution: unknown direction %q", sig.Direction))
	}
}

// enter opens a long position and protects it with an OCO pair. If the
// OCO placement fails the position is flattened immediately and the
// trade marked FAILED: an unprotected position must never be left open.
func (e *ExecutionEngine) enter(ctx context.Context, creds models.Credentials, sig models.TradeSignal) error {
	open, err := e.trades.FindOpenTrades(ctx, sig.AccountID, sig.Symbol)
	if err != nil {
		return errors.Wrap(err, "execution: find open trades")
	}
	for _, t := range open {
		if t.Side == models.SideBuy {
			logger.Info("execution: %s/%s already long, entry skipped", sig.Symbol, sig.AccountID)
			return nil
		}
	}

	qty, err := e.client.QuantityFromQuoteAmount(ctx, sig.Symbol, sig.Params.PositionQuote)
	if err != nil {
		return errors.Wrap(err, "execution: size order")
	}

	ord := exchange.OrderRequest{Symbol: sig.Symbol, Side: models.SideBuy, Quantity: qty}
	if err := e.client.ValidateOrder(ctx, ord); err != nil {
		e.emitFailure(ctx, sig, ReasonValidation, err)
		return brokersvc.Permanent(errors.Wrap(err, "execution: validate order"))
	}

	fill, err := e.client.PlaceMarketOrder(ctx, creds, ord)
	if err != nil {
		return errors.Wrap(err, "execution: place entry")
	}

	slDist := fill.AvgPrice * sig.Params.StopPct / 100
	stopLoss := fill.AvgPrice - slDist
	takeProfit := fill.AvgPrice + slDist*sig.Params.TakeProfitRR

	trade := models.Trade{
		ID:           uuid.NewString(),
		StrategyID:   sig.StrategyID,
		AccountID:    sig.AccountID,
		Symbol:       sig.Symbol,
		Side:         models.SideBuy,
		Status:       models.TradeOpen,
		EntryOrderID: fill.OrderID,
		EntryPrice:   fill.AvgPrice,
		Quantity:     fill.FilledQty,
		Fees:         fill.Fee,
		OpenedAt:     time.Now(),
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		// Position is live but unrecorded; reconciliation cannot see it,
		// so surface loudly and let the retry path re-deliver.
		return errors.Wrap(err, "execution: persist trade")
	}

	ocoID, err := e.client.PlaceOcoOrder(ctx, creds, exchange.OcoRequest{
		Symbol:     sig.Symbol,
		Side:       models.SideSell,
		Quantity:   fill.FilledQty,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
	})
	if err != nil {
		e.compensate(ctx, creds, trade, fill.FilledQty, err)
		return nil
	}

	if err := e.trades.SetOcoOrderID(ctx, trade.ID, ocoID); err != nil {
		logger.Error("execution: record oco id %s: %v", trade.ID, err)
	}

	e.bus.Emit(ctx, notify.Event{
		Kind:       notify.EventTradeExecuted,
		StrategyID: sig.StrategyID,
		AccountID:  sig.AccountID,
		Symbol:     sig.Symbol,
		Detail:     "BUY " + formatTrade(fill.FilledQty, fill.AvgPrice),
	})
	return nil
}

// compensate flattens the position left by a failed OCO placement and
// marks the trade FAILED. Errors here are logged, not returned: the
// signal itself is finished either way.
func (e *ExecutionEngine) compensate(ctx context.Context, creds models.Credentials, trade models.Trade, qty float64, cause error) {
	logger.Error("execution: oco placement failed for %s, flattening: %v", trade.ID, cause)

	_, closeErr := e.client.PlaceMarketOrder(ctx, creds, exchange.OrderRequest{
		Symbol:   trade.Symbol,
		Side:     models.SideSell,
		Quantity: qty,
	})
	if closeErr != nil {
		logger.Error("execution: compensating close failed for %s: %v", trade.ID, closeErr)
	}

	if err := e.trades.MarkFailed(ctx, trade.ID, ReasonOcoPlacement); err != nil {
		logger.Error("execution: mark failed %s: %v", trade.ID, err)
	}

	e.bus.Emit(ctx, notify.Event{
		Kind:       notify.EventExecutionFailed,
		StrategyID: trade.StrategyID,
		AccountID:  trade.AccountID,
		Symbol:     trade.Symbol,
		Reason:     ReasonOcoPlacement,
		Err:        cause,
	})
}

// exit closes the open long for the signal's strategy: cancel the OCO
// pair best-effort, then market-sell the exact recorded quantity.
func (e *ExecutionEngine) exit(ctx context.Context, creds models.Credentials, sig models.TradeSignal) error {
	open, err := e.trades.FindOpenTradesByStrategy(ctx, sig.StrategyID)
	if err != nil {
		return errors.Wrap(err, "execution: find open trades")
	}

	var target *models.Trade
	for i := range open {
		if open[i].Symbol == sig.Symbol && open[i].AccountID == sig.AccountID {
			target = &open[i]
			break
		}
	}
	// spot account, no position to sell against: shorting is rejected,
	// not queued
	if target == nil {
		e.emitFailure(ctx, sig, ReasonShortNotSupported, ErrShortNotSupported)
		return brokersvc.Permanent(ErrShortNotSupported)
	}

	if target.OcoOrderID != "" {
		if err := e.client.CancelOcoOrder(ctx, creds, target.Symbol, target.OcoOrderID); err != nil {
			// The pair may already be gone if TP/SL just triggered;
			// proceed with the close either way.
			logger.Error("execution: cancel oco %s: %v", target.OcoOrderID, err)
		}
	}

	fill, err := e.client.PlaceMarketOrder(ctx, creds, exchange.OrderRequest{
		Symbol:   target.Symbol,
		Side:     models.SideSell,
		Quantity: target.Quantity,
	})
	if err != nil {
		return errors.Wrap(err, "execution: place exit")
	}

	pnl := (fill.AvgPrice - target.EntryPrice) * target.Quantity
	fees := target.Fees + fill.Fee
	if err := e.trades.CloseTrade(ctx, target.ID, models.TradeClosedManual, fill.AvgPrice, pnl, fees); err != nil {
		return errors.Wrap(err, "execution: close trade")
	}

	e.bus.Emit(ctx, notify.Event{
		Kind:       notify.EventTradeExecuted,
		StrategyID: sig.StrategyID,
		AccountID:  sig.AccountID,
		Symbol:     sig.Symbol,
		Detail:     "SELL " + formatTrade(target.Quantity, fill.AvgPrice),
	})
	return nil
}

func (e *ExecutionEngine) emitFailure(ctx context.Context, sig models.TradeSignal, reason string, err error) {
	e.bus.Emit(ctx, notify.Event{
		Kind:       notify.EventExecutionFailed,
		StrategyID: sig.StrategyID,
		AccountID:  sig.AccountID,
		Symbol:     sig.Symbol,
		Reason:     reason,
		Err:        err,
	})
}
