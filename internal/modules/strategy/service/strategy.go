package service

import "trade_core/internal/models"

// Candle is the per-bar input every strategy consumes.
type Candle struct {
	Open, High, Low, Close, Volume float64
}

// Result is a strategy's answer for one bar. SideHold means no action;
// Strength is a 0..1 confidence score.
type Result struct {
	Side     models.Side
	Strength float64
	Price    float64
	Reason   string
}

// Engine is what the strategy engine drives per instance.
type Engine interface {
	OnCandle(symbol string, c Candle) Result
	Dump(symbol string) string
}

func hold() Result {
	return Result{Side: models.SideHold}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
