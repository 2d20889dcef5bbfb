package service

import (
	"fmt"
	"sync"

	"trade_core/internal/models"
)

type RSIConfig struct {
	Period     int
	Overbought float64
	Oversold   float64
}

// RSI signals on threshold crossings: BUY when RSI crosses below the
// oversold level, SELL when it crosses above the overbought level.
// Crossing, not level, so a market camped below 30 fires once.
type RSI struct {
	cfg RSIConfig

	mu    sync.Mutex
	state map[string]*rsiState
}

type rsiState struct {
	prev        float64
	avgGain     float64
	avgLoss     float64
	initialized bool
	samples     int
	lastRSI     float64
	hasRSI      bool
}

func NewRSI(cfg RSIConfig) *RSI {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Overbought <= 0 {
		cfg.Overbought = 70
	}
	if cfg.Oversold <= 0 {
		cfg.Oversold = 30
	}
	return &RSI{cfg: cfg, state: make(map[string]*rsiState)}
}

// update advances Wilder-smoothed RSI with one close; ok is false until
// the warmup window has passed.
func (s *rsiState) update(price float64, period int) (float64, bool) {
	if !s.initialized {
		s.prev = price
		s.initialized = true
		return 0, false
	}

	change := price - s.prev
	gain := 0.0
	loss := 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	alpha := 1.0 / float64(period)
	if s.avgGain == 0 && s.avgLoss == 0 {
		s.avgGain, s.avgLoss = gain, loss
	} else {
		s.avgGain = (1-alpha)*s.avgGain + alpha*gain
		s.avgLoss = (1-alpha)*s.avgLoss + alpha*loss
	}
	s.prev = price
	s.samples++
	if s.samples < period {
		return 0, false
	}

	if s.avgLoss == 0 {
		if s.avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := s.avgGain / s.avgLoss
	return 100 - (100 / (1 + rs)), true
}

func (r *RSI) OnCandle(symbol string, c Candle) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.state[symbol]
	if st == nil {
		st = &rsiState{}
		r.state[symbol] = st
	}

	rsi, ok := st.update(c.Close, r.cfg.Period)
	if !ok {
		return hold()
	}

	prevRSI, hadPrev := st.lastRSI, st.hasRSI
	st.lastRSI, st.hasRSI = rsi, true
	if !hadPrev {
		return hold()
	}

	if prevRSI >= r.cfg.Oversold && rsi < r.cfg.Oversold {
		return Result{
			Side:     models.SideBuy,
			Strength: clamp01((r.cfg.Oversold - rsi) / r.cfg.Oversold),
			Price:    c.Close,
			Reason:   fmt.Sprintf("RSI cross down: %.2f < %.2f", rsi, r.cfg.Oversold),
		}
	}
	if prevRSI <= r.cfg.Overbought && rsi > r.cfg.Overbought {
		return Result{
			Side:     models.SideSell,
			Strength: clamp01((rsi - r.cfg.Overbought) / (100 - r.cfg.Overbought)),
			Price:    c.Close,
			Reason:   fmt.Sprintf("RSI cross up: %.2f > %.2f", rsi, r.cfg.Overbought),
		}
	}
	return hold()
}

func (r *RSI) Dump(symbol string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state[symbol]
	if st == nil || !st.hasRSI {
		return "RSI: warmup"
	}
	return fmt.Sprintf("RSI[%d]=%.2f", r.cfg.Period, st.lastRSI)
}
