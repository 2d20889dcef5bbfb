package exchange

import (
	"context"

	"trade_core/internal/models"
)

// OrderRequest is a market order about to be placed.
type OrderRequest struct {
	Symbol   string
	Side     models.Side
	Quantity float64
}

// OrderResult is the realized outcome of a filled market order.
type OrderResult struct {
	OrderID   string
	AvgPrice  float64
	FilledQty float64
	Fee       float64
}

// OcoRequest is the protective take-profit/stop-loss pair submitted as
// one linked unit after an entry fill.
type OcoRequest struct {
	Symbol     string
	Side       models.Side // closing side, opposite of the entry
	Quantity   float64
	TakeProfit float64
	StopLoss   float64
}

// TradingClient is the narrow surface the execution engine needs from
// an exchange. Any call may fail with a transport or rejection error.
type TradingClient interface {
	QuantityFromQuoteAmount(ctx context.Context, symbol string, quoteAmount float64) (float64, error)
	ValidateOrder(ctx context.Context, req OrderRequest) error
	PlaceMarketOrder(ctx context.Context, creds models.Credentials, req OrderRequest) (OrderResult, error)
	PlaceOcoOrder(ctx context.Context, creds models.Credentials, req OcoRequest) (string, error)
	CancelOcoOrder(ctx context.Context, creds models.Credentials, symbol, ocoOrderID string) error
}

// CredentialsProvider resolves exchange keys per account right before
// an execution attempt.
type CredentialsProvider interface {
	GetCredentials(ctx context.Context, accountID string) (models.Credentials, error)
}
