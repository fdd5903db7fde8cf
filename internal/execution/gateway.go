package execution

import (
	"context"

	"polyagent/internal/market"
	"polyagent/internal/money"
)

// OrderRequest carries everything needed to place and record one trade.
type OrderRequest struct {
	Cycle      int64
	Market     market.Market
	Side       market.Side
	Price      money.Money // entry price of the chosen side's token
	Tokens     money.Money // outcome tokens to buy
	TTLSeconds int

	// Snapshot fields persisted with the trade.
	Edge          money.Money
	FairValue     money.Money
	Confidence    money.Money
	KellyRaw      money.Money
	KellyAdjusted money.Money
}

// CostUSD is the capital the order locks up.
func (r OrderRequest) CostUSD() money.Money { return r.Price.Mul(r.Tokens) }

type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
)

// OrderResult reports the outcome of a placement attempt.
type OrderResult struct {
	OrderID string
	TradeID int64
	Status  OrderStatus
	Reason  string
}

func (r OrderResult) Filled() bool { return r.Status == OrderFilled }

// Gateway is the unified order-routing interface. A rejection is a
// result, not an error; errors mean the gateway itself failed.
type Gateway interface {
	PlaceLimitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// LiveGateway would sign and submit real CLOB orders. Order signing is
// deliberately unimplemented; config validation refuses live mode so
// this is never reached in a running agent.
type LiveGateway struct{}

func (LiveGateway) PlaceLimitOrder(context.Context, OrderRequest) (OrderResult, error) {
	return OrderResult{}, market.ErrNotImplemented
}
