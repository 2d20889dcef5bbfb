package models

import "time"

// StrategyKind keys the strategy registry.
type StrategyKind string

const (
	StrategyEMARSI   StrategyKind = "emarsi"
	StrategyRSI      StrategyKind = "rsi"
	StrategyDonchian StrategyKind = "donchian"
)

// RuntimeParams is the flat parameter set a concrete strategy and the
// execution engine read. Zero values mean "not set"; which groups are
// populated also drives strategy-type resolution.
type RuntimeParams struct {
	EMAShort      int     `json:"emaShort,omitempty"`
	EMALong       int     `json:"emaLong,omitempty"`
	RSIPeriod     int     `json:"rsiPeriod,omitempty"`
	RSIOverbought float64 `json:"rsiOverbought,omitempty"`
	RSIOversold   float64 `json:"rsiOversold,omitempty"`

	DonchianPeriod int `json:"donchianPeriod,omitempty"`
	TrendEmaPeriod int `json:"trendEmaPeriod,omitempty"`

	// Risk parameters used when turning a signal into orders.
	PositionQuote float64 `json:"positionQuote,omitempty"` // order size in quote currency
	StopPct       float64 `json:"stopPct,omitempty"`       // SL distance from entry, percent
	TakeProfitRR  float64 `json:"takeProfitRR,omitempty"`  // TP = entry +/- RR * SL distance
}

// StrategyDefinition is what StartStrategy receives.
type StrategyDefinition struct {
	ID        string        `json:"id"`
	AccountID string        `json:"accountId"`
	Name      string        `json:"name"`
	Symbol    string        `json:"symbol"`
	Interval  string        `json:"interval"`
	Params    RuntimeParams `json:"params"`
}

// StrategyRecord is the raw persisted row; params stay serialized until
// the repository converts the record into a runtime definition.
type StrategyRecord struct {
	ID        string
	AccountID string
	Name      string
	Symbol    string
	Interval  string
	ParamsRaw []byte
	IsActive  bool
}

type Position string

const (
	PositionNone  Position = "NONE"
	PositionLong  Position = "LONG"
	PositionShort Position = "SHORT"
)

// InstanceSnapshot is the serialized runtime state of one running
// strategy instance, refreshed in the snapshot cache after every tick
// and every emitted signal.
type InstanceSnapshot struct {
	StrategyID  string    `json:"strategyId"`
	AccountID   string    `json:"accountId"`
	Symbol      string    `json:"symbol"`
	Interval    string    `json:"interval"`
	Kind        string    `json:"kind"`
	Position    Position  `json:"position"`
	LastSignal  Side      `json:"lastSignal"`
	SignalCount int64     `json:"signalCount"`
	Indicators  string    `json:"indicators"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
