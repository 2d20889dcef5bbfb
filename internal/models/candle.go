package models

import "time"

// CandleTick is one OHLCV bar for a symbol/interval, the payload of
// market.tick.closed. IsFinal marks a closed bar; the feed never
// forwards unconfirmed bars downstream.
type CandleTick struct {
	Symbol      string    `json:"symbol"`
	Interval    string    `json:"interval"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	VolumeQuote float64   `json:"volumeQuote"`
	CloseTime   time.Time `json:"closeTime"`
	IsFinal     bool      `json:"isFinal"`
}
