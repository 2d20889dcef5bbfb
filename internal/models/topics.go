package models

// Topic names shared by the pipeline. Only finalized bars are published
// on TopicMarketTickClosed; TopicTradingSignal carries non-HOLD signals.
const (
	TopicMarketTickClosed = "market.tick.closed"
	TopicTradingSignal    = "trading.signal.generated"

	TopicTradingSignalDLQ = "trading.signal.dlq"
	TopicMarketTickDLQ    = "market.tick.dlq"
)
