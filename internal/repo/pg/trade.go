package pg

import (
	"context"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/db"

	"github.com/pkg/errors"
)

const tradeColumns = `
	id, strategy_id, account_id, symbol, side, status,
	entry_order_id, oco_order_id, entry_price, quantity,
	exit_price, pnl, fees, fail_reason, opened_at, closed_at`

type TradeRepo struct {
	db db.TxManager
}

func NewTradeRepo(txm *db.PgTxManager) *TradeRepo {
	return &TradeRepo{db: txm}
}

func (r *TradeRepo) Create(ctx context.Context, t models.Trade) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.TradeCreate")
		}
	}()

	_, err = r.db.Conn().Exec(ctx, `
		INSERT INTO trades
			(id, strategy_id, account_id, symbol, side, status,
			 entry_order_id, oco_order_id, entry_price, quantity,
			 exit_price, pnl, fees, fail_reason, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.StrategyID, t.AccountID, t.Symbol, t.Side, t.Status,
		t.EntryOrderID, t.OcoOrderID, t.EntryPrice, t.Quantity,
		t.ExitPrice, t.Pnl, t.Fees, t.FailReason, t.OpenedAt, nilTime(t.ClosedAt),
	)
	return err
}

func (r *TradeRepo) FindOpenTrades(ctx context.Context, accountID, symbol string) ([]models.Trade, error) {
	return r.query(ctx, "pg.TradeFindOpen", `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE status = $1 AND account_id = $2 AND symbol = $3
		ORDER BY opened_at`,
		models.TradeOpen, accountID, symbol,
	)
}

func (r *TradeRepo) FindOpenTradesByStrategy(ctx context.Context, strategyID string) ([]models.Trade, error) {
	return r.query(ctx, "pg.TradeFindOpenByStrategy", `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE status = $1 AND strategy_id = $2
		ORDER BY opened_at`,
		models.TradeOpen, strategyID,
	)
}

// FindOrphaned returns OPEN trades without a protective pair opened
// before the cutoff.
func (r *TradeRepo) FindOrphaned(ctx context.Context, olderThan time.Time) ([]models.Trade, error) {
	return r.query(ctx, "pg.TradeFindOrphaned", `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE status = $1 AND oco_order_id = '' AND opened_at < $2
		ORDER BY opened_at`,
		models.TradeOpen, olderThan,
	)
}

func (r *TradeRepo) SetOcoOrderID(ctx context.Context, tradeID, ocoOrderID string) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.TradeSetOco")
		}
	}()

	_, err = r.db.Conn().Exec(ctx,
		`UPDATE trades SET oco_order_id = $2 WHERE id = $1`,
		tradeID, ocoOrderID,
	)
	return err
}

func (r *TradeRepo) CloseTrade(ctx context.Context, tradeID string, status models.TradeStatus, exitPrice, pnl, fees float64) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.TradeClose")
		}
	}()

	_, err = r.db.Conn().Exec(ctx, `
		UPDATE trades
		SET status = $2, exit_price = $3, pnl = $4, fees = $5, closed_at = $6
		WHERE id = $1`,
		tradeID, status, exitPrice, pnl, fees, time.Now(),
	)
	return err
}

func (r *TradeRepo) MarkFailed(ctx context.Context, tradeID, reason string) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.TradeMarkFailed")
		}
	}()

	_, err = r.db.Conn().Exec(ctx, `
		UPDATE trades
		SET status = $2, fail_reason = $3, closed_at = $4
		WHERE id = $1`,
		tradeID, models.TradeFailed, reason, time.Now(),
	)
	return err
}

func (r *TradeRepo) query(ctx context.Context, op, sql string, args ...any) (out []models.Trade, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, op)
		}
	}()

	rows, err := r.db.Conn().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Trade
		var closedAt *time.Time
		if err = rows.Scan(
			&t.ID, &t.StrategyID, &t.AccountID, &t.Symbol, &t.Side, &t.Status,
			&t.EntryOrderID, &t.OcoOrderID, &t.EntryPrice, &t.Quantity,
			&t.ExitPrice, &t.Pnl, &t.Fees, &t.FailReason, &t.OpenedAt, &closedAt,
		); err != nil {
			return nil, err
		}
		if closedAt != nil {
			t.ClosedAt = *closedAt
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nilTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
