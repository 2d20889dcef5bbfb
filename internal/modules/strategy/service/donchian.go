package service

import (
	"fmt"
	"math"
	"sync"

	"trade_core/internal/models"
)

// DonchianConfig drives the channel breakout with an EMA trend filter.
type DonchianConfig struct {
	Period    int // N candles, e.g. 20
	TrendEma  int // EMA filter, e.g. 50
	MinWarmup int // candles to wait before signalling; defaults to max(Period, TrendEma)
}

type Donchian struct {
	cfg DonchianConfig

	mu    sync.Mutex
	state map[string]*donchianState
}

type donchianState struct {
	highs []float64
	lows  []float64
	ema   emaState

	lastSignal models.Side
}

type emaState struct {
	period int
	alpha  float64
	value  float64
	warmup int
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

func (e *emaState) Update(price float64) {
	if e.warmup == 0 {
		e.value = price
		e.warmup = 1
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	if e.warmup < e.period {
		e.warmup++
	}
}

func (e *emaState) Ready() bool {
	return e.warmup >= e.period
}

func (e *emaState) Value() float64 { return e.value }

func NewDonchian(cfg DonchianConfig) *Donchian {
	if cfg.Period <= 0 {
		cfg.Period = 20
	}
	if cfg.TrendEma <= 0 {
		cfg.TrendEma = 50
	}
	if cfg.MinWarmup <= 0 {
		cfg.MinWarmup = int(math.Max(float64(cfg.Period), float64(cfg.TrendEma)))
	}
	return &Donchian{
		cfg:   cfg,
		state: make(map[string]*donchianState),
	}
}

func (s *Donchian) get(symbol string) *donchianState {
	if st, ok := s.state[symbol]; ok {
		return st
	}
	st := &donchianState{
		highs: make([]float64, 0, s.cfg.Period),
		lows:  make([]float64, 0, s.cfg.Period),
		ema:   newEMA(s.cfg.TrendEma),
	}
	s.state[symbol] = st
	return st
}

// OnCandle evaluates one closed bar. Trades only in the EMA direction.
// The channel is built from the bars before this one; the current bar's
// own high/low joins the window afterwards, otherwise a breakout could
// never clear its own extreme.
func (s *Donchian) OnCandle(symbol string, c Candle) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(symbol)

	st.ema.Update(c.Close)

	ready := len(st.highs) >= s.cfg.Period && st.ema.Ready()
	var dh, dl float64
	if ready {
		dh = maxSlice(st.highs)
		dl = minSlice(st.lows)
	}

	st.highs = append(st.highs, c.High)
	st.lows = append(st.lows, c.Low)
	if len(st.highs) > s.cfg.Period {
		st.highs = st.highs[1:]
		st.lows = st.lows[1:]
	}

	if !ready {
		return hold()
	}

	ema := st.ema.Value()

	width := dh - dl
	var side models.Side = models.SideHold
	var reason string
	var strength float64

	if c.Close > dh && c.Close > ema {
		side = models.SideBuy
		reason = fmt.Sprintf("Donchian breakout UP: close=%.5f > dh=%.5f & ema=%.5f", c.Close, dh, ema)
		if width > 0 {
			strength = clamp01((c.Close - dh) / width)
		}
	}

	if c.Close < dl && c.Close < ema {
		side = models.SideSell
		reason = fmt.Sprintf("Donchian breakout DOWN: close=%.5f < dl=%.5f & ema=%.5f", c.Close, dl, ema)
		if width > 0 {
			strength = clamp01((dl - c.Close) / width)
		}
	}

	if side == models.SideHold {
		return hold()
	}

	st.lastSignal = side

	return Result{
		Side:     side,
		Strength: strength,
		Price:    c.Close,
		Reason:   reason,
	}
}

func (s *Donchian) Dump(symbol string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[symbol]
	if !ok || len(st.highs) == 0 {
		return "Donchian: warmup"
	}

	dh := maxSlice(st.highs)
	dl := minSlice(st.lows)
	return fmt.Sprintf("Donchian[period=%d] H=%.5f L=%.5f EMA%d=%.5f last=%s",
		s.cfg.Period, dh, dl, s.cfg.TrendEma, st.ema.Value(), st.lastSignal)
}

func maxSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minSlice(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
