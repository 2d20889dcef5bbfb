package models

// Side is a strategy's directional output.
type Side string

const (
	SideHold Side = "HOLD"
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeSignal travels on trading.signal.generated between the strategy
// and execution engines. It is ephemeral: nothing persists it.
type TradeSignal struct {
	StrategyID string        `json:"strategyId"`
	AccountID  string        `json:"accountId"`
	Symbol     string        `json:"symbol"`
	Direction  Side          `json:"direction"`
	Strength   float64       `json:"strength"`
	Price      float64       `json:"price"`
	Reason     string        `json:"reason,omitempty"`
	Params     RuntimeParams `json:"strategyParams"`
}
