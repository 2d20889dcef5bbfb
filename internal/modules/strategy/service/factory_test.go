package service

import (
	"testing"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestResolveByName(t *testing.T) {
	cases := []struct {
		name string
		want models.StrategyKind
	}{
		{"Donchian Breakout 20", models.StrategyDonchian},
		{"emarsi-blend", models.StrategyEMARSI},
		{"RSI scalper", models.StrategyRSI},
	}
	for _, tc := range cases {
		def := models.StrategyDefinition{Name: tc.name}
		assert.Equal(t, tc.want, Resolve(def), tc.name)
	}
}

func TestResolveByParams(t *testing.T) {
	assert.Equal(t, models.StrategyDonchian, Resolve(models.StrategyDefinition{
		Params: models.RuntimeParams{DonchianPeriod: 20},
	}))
	assert.Equal(t, models.StrategyEMARSI, Resolve(models.StrategyDefinition{
		Params: models.RuntimeParams{EMAShort: 9, EMALong: 21},
	}))
	assert.Equal(t, models.StrategyRSI, Resolve(models.StrategyDefinition{
		Params: models.RuntimeParams{RSIPeriod: 14},
	}))
}

func TestResolveDefault(t *testing.T) {
	assert.Equal(t, models.StrategyEMARSI, Resolve(models.StrategyDefinition{Name: "my strategy"}))
}

func TestResolveNameBeatsParams(t *testing.T) {
	// an explicit hint wins over populated parameter groups
	def := models.StrategyDefinition{
		Name:   "donchian trend",
		Params: models.RuntimeParams{RSIPeriod: 14},
	}
	assert.Equal(t, models.StrategyDonchian, Resolve(def))
}

func TestNewEngineConstructs(t *testing.T) {
	kind, eng := NewEngine(models.StrategyDefinition{Name: "rsi"})
	assert.Equal(t, models.StrategyRSI, kind)
	assert.NotNil(t, eng)
}
