package service

import (
	"strings"

	"trade_core/internal/models"
)

// registry maps a resolved kind to its constructor. All kind lookup
// goes through Resolve so the heuristic lives in exactly one place.
var registry = map[models.StrategyKind]func(models.RuntimeParams) Engine{
	models.StrategyEMARSI: func(p models.RuntimeParams) Engine {
		return NewEMARSI(EMARSIConfig{
			EMAShort:      p.EMAShort,
			EMALong:       p.EMALong,
			RSIPeriod:     p.RSIPeriod,
			RSIOverbought: p.RSIOverbought,
			RSIOversold:   p.RSIOversold,
		})
	},
	models.StrategyRSI: func(p models.RuntimeParams) Engine {
		return NewRSI(RSIConfig{
			Period:     p.RSIPeriod,
			Overbought: p.RSIOverbought,
			Oversold:   p.RSIOversold,
		})
	},
	models.StrategyDonchian: func(p models.RuntimeParams) Engine {
		return NewDonchian(DonchianConfig{
			Period:   p.DonchianPeriod,
			TrendEma: p.TrendEmaPeriod,
		})
	},
}

// Resolve picks the concrete strategy kind for a definition. Priority:
// explicit hint in the definition name, then which parameter groups are
// populated, then the EMARSI default.
func Resolve(def models.StrategyDefinition) models.StrategyKind {
	name := strings.ToLower(def.Name)
	switch {
	case strings.Contains(name, "donchian"):
		return models.StrategyDonchian
	case strings.Contains(name, "emarsi"):
		return models.StrategyEMARSI
	case strings.Contains(name, "rsi"):
		return models.StrategyRSI
	}

	p := def.Params
	switch {
	case p.DonchianPeriod > 0:
		return models.StrategyDonchian
	case p.EMAShort > 0 || p.EMALong > 0:
		return models.StrategyEMARSI
	case p.RSIPeriod > 0:
		return models.StrategyRSI
	}

	return models.StrategyEMARSI
}

// NewEngine constructs the engine for a definition via the registry.
func NewEngine(def models.StrategyDefinition) (models.StrategyKind, Engine) {
	kind := Resolve(def)
	ctor, ok := registry[kind]
	if !ok {
		kind = models.StrategyEMARSI
		ctor = registry[kind]
	}
	return kind, ctor(def.Params)
}
