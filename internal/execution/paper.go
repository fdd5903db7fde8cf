package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"polyagent/internal/logger"
	"polyagent/internal/money"
	"polyagent/internal/store"
)

// PaperGateway simulates fills synchronously: the order fills at its
// limit price, the cost moves from bankroll into exposure, and a FILLED
// trade row is written. No network I/O.
type PaperGateway struct {
	store  *store.Store
	wallet *PaperWallet
}

func NewPaperGateway(s *store.Store, w *PaperWallet) *PaperGateway {
	return &PaperGateway{store: s, wallet: w}
}

func (g *PaperGateway) PlaceLimitOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	cost := req.CostUSD()
	if !cost.IsPositive() {
		return OrderResult{Status: OrderRejected, Reason: "zero-cost order"}, nil
	}
	if cost.GreaterThan(g.wallet.Balance()) {
		// Insufficient balance is a skip, not an error: the loop moves
		// on and the survival check deals with the bankroll.
		return OrderResult{Status: OrderRejected, Reason: "insufficient balance"}, nil
	}

	// The trade row is the commit point: persist first, then move the
	// money. A crash in between leaves a FILLED row that restore picks
	// up, never a dangling reservation.
	tradeID, err := g.store.InsertTrade(store.TradeRecord{
		Cycle:          req.Cycle,
		MarketID:       req.Market.ConditionID,
		MarketQuestion: req.Market.Question,
		Direction:      string(req.Side),
		EntryPrice:     req.Price,
		Size:           req.Tokens,
		EdgeAtEntry:    req.Edge,
		FairValue:      req.FairValue,
		Confidence:     req.Confidence,
		KellyRaw:       req.KellyRaw,
		KellyAdjusted:  req.KellyAdjusted,
		Status:         store.TradeStatusFilled,
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("paper fill: %w", err)
	}
	if err := g.wallet.Reserve(cost); err != nil {
		// Raced by concurrent oracle debits; back the row out.
		loss := money.Zero
		if uerr := g.store.UpdateTradeStatus(tradeID, store.TradeStatusCancelled, &loss); uerr != nil {
			return OrderResult{}, fmt.Errorf("paper fill: cancel after failed reserve: %w", uerr)
		}
		return OrderResult{Status: OrderRejected, Reason: "insufficient balance"}, nil
	}

	orderID := "paper-" + uuid.NewString()
	logger.Infof("paper fill: trade=%d order=%s market=%s side=%s price=%s tokens=%s cost=%s",
		tradeID, orderID, req.Market.ConditionID, req.Side, req.Price, req.Tokens, cost)
	return OrderResult{OrderID: orderID, TradeID: tradeID, Status: OrderFilled}, nil
}
