package service

import (
	"fmt"
	"sync"

	"trade_core/internal/models"
)

type EMARSIConfig struct {
	EMAShort      int
	EMALong       int
	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64
}

// EMARSI combines an EMA trend cross with an RSI filter: BUY when the
// short EMA is above the long one and RSI is oversold, SELL on the
// mirror condition.
type EMARSI struct {
	cfg EMARSIConfig

	mu       sync.Mutex
	emaShort map[string]float64
	emaLong  map[string]float64
	rsi      map[string]*rsiState
}

func NewEMARSI(cfg EMARSIConfig) *EMARSI {
	if cfg.EMAShort <= 0 {
		cfg.EMAShort = 9
	}
	if cfg.EMALong <= 0 {
		cfg.EMALong = 21
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = 70
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = 30
	}
	return &EMARSI{
		cfg:      cfg,
		emaShort: map[string]float64{},
		emaLong:  map[string]float64{},
		rsi:      map[string]*rsiState{},
	}
}

func (s *EMARSI) OnCandle(symbol string, c Candle) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	price := c.Close
	kShort := 2.0 / float64(s.cfg.EMAShort+1)
	kLong := 2.0 / float64(s.cfg.EMALong+1)
	if s.emaShort[symbol] == 0 {
		s.emaShort[symbol] = price
	}
	if s.emaLong[symbol] == 0 {
		s.emaLong[symbol] = price
	}
	s.emaShort[symbol] = s.emaShort[symbol] + kShort*(price-s.emaShort[symbol])
	s.emaLong[symbol] = s.emaLong[symbol] + kLong*(price-s.emaLong[symbol])

	r := s.rsi[symbol]
	if r == nil {
		r = &rsiState{}
		s.rsi[symbol] = r
	}
	rsi, ok := r.update(price, s.cfg.RSIPeriod)
	if !ok {
		return hold()
	}

	if s.emaShort[symbol] > s.emaLong[symbol] && rsi < s.cfg.RSIOversold {
		return Result{
			Side:     models.SideBuy,
			Strength: clamp01((s.cfg.RSIOversold - rsi) / s.cfg.RSIOversold),
			Price:    price,
			Reason:   fmt.Sprintf("EMA up & RSI=%.2f < %.2f", rsi, s.cfg.RSIOversold),
		}
	}
	if s.emaShort[symbol] < s.emaLong[symbol] && rsi > s.cfg.RSIOverbought {
		return Result{
			Side:     models.SideSell,
			Strength: clamp01((rsi - s.cfg.RSIOverbought) / (100 - s.cfg.RSIOverbought)),
			Price:    price,
			Reason:   fmt.Sprintf("EMA down & RSI=%.2f > %.2f", rsi, s.cfg.RSIOverbought),
		}
	}
	return hold()
}

func (s *EMARSI) Dump(symbol string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("EMA_S=%.4f EMA_L=%.4f", s.emaShort[symbol], s.emaLong[symbol])
}
