package models

import "time"

type TradeStatus string

const (
	TradeOpen         TradeStatus = "OPEN"
	TradeClosedTP     TradeStatus = "CLOSED_TP"
	TradeClosedSL     TradeStatus = "CLOSED_SL"
	TradeClosedManual TradeStatus = "CLOSED_MANUAL"
	TradeFailed       TradeStatus = "FAILED"
)

// Trade is the persisted record the execution engine drives through its
// lifecycle. OcoOrderID empty on an OPEN trade means the position is
// unprotected ("orphaned") and will be picked up by reconciliation.
type Trade struct {
	ID           string
	StrategyID   string
	AccountID    string
	Symbol       string
	Side         Side
	Status       TradeStatus
	EntryOrderID string
	OcoOrderID   string
	EntryPrice   float64
	Quantity     float64
	ExitPrice    float64
	Pnl          float64
	Fees         float64
	FailReason   string
	OpenedAt     time.Time
	ClosedAt     time.Time
}
