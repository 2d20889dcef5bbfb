package service

import (
	"testing"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDonchianBreakoutUp(t *testing.T) {
	d := NewDonchian(DonchianConfig{Period: 3, TrendEma: 3})

	flat := Candle{Open: 9.5, High: 10, Low: 9, Close: 9.5}
	for i := 0; i < 3; i++ {
		assert.Equal(t, models.SideHold, d.OnCandle("BTC-USDT", flat).Side)
	}

	res := d.OnCandle("BTC-USDT", Candle{Open: 10, High: 11.2, Low: 9.9, Close: 11})
	assert.Equal(t, models.SideBuy, res.Side)
	assert.Equal(t, 11.0, res.Price)
	assert.Greater(t, res.Strength, 0.0)
}

func TestDonchianBreakoutDown(t *testing.T) {
	d := NewDonchian(DonchianConfig{Period: 3, TrendEma: 3})

	flat := Candle{Open: 9.5, High: 10, Low: 9, Close: 9.5}
	for i := 0; i < 3; i++ {
		d.OnCandle("BTC-USDT", flat)
	}

	res := d.OnCandle("BTC-USDT", Candle{Open: 9, High: 9.1, Low: 7.8, Close: 8})
	assert.Equal(t, models.SideSell, res.Side)
}

func TestDonchianInsideChannelHolds(t *testing.T) {
	d := NewDonchian(DonchianConfig{Period: 3, TrendEma: 3})

	flat := Candle{Open: 9.5, High: 10, Low: 9, Close: 9.5}
	for i := 0; i < 3; i++ {
		d.OnCandle("BTC-USDT", flat)
	}
	assert.Equal(t, models.SideHold, d.OnCandle("BTC-USDT", flat).Side)
}
