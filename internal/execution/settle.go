package execution

import (
	"context"

	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/money"
	"polyagent/internal/risk"
	"polyagent/internal/store"
)

// ResolutionRecorder closes calibration records when markets resolve.
type ResolutionRecorder interface {
	RecordResolution(marketID string, outcome int) error
}

// Settler settles resolved markets and runs the stop-loss sweep against
// open positions.
type Settler struct {
	store       *store.Store
	client      market.ExchangeClient
	tracker     *risk.Tracker
	wallet      *PaperWallet
	calibration ResolutionRecorder
	stopLossPct money.Money
}

func NewSettler(s *store.Store, client market.ExchangeClient, tracker *risk.Tracker, wallet *PaperWallet, calibration ResolutionRecorder, stopLossPct money.Money) *Settler {
	return &Settler{
		store:       s,
		client:      client,
		tracker:     tracker,
		wallet:      wallet,
		calibration: calibration,
		stopLossPct: stopLossPct,
	}
}

// SettlementResult summarizes one settled trade.
type SettlementResult struct {
	TradeID  int64
	MarketID string
	PnL      money.Money
	Won      bool
}

// SettleResolutions checks every market with open trades and settles
// those that resolved. Settling is idempotent: once a trade leaves
// OPEN/FILLED it is never touched again, so a repeated call with the
// same resolution is a no-op.
func (s *Settler) SettleResolutions(ctx context.Context) ([]SettlementResult, error) {
	open, err := s.store.ListOpenTrades()
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	resolutions := make(map[string]*market.Resolution)
	for _, trade := range open {
		if _, seen := resolutions[trade.MarketID]; seen {
			continue
		}
		res, err := s.client.GetResolution(ctx, trade.MarketID)
		if err != nil {
			logger.Warnf("settle: resolution check for %s failed: %v", trade.MarketID, err)
			continue
		}
		resolutions[trade.MarketID] = res
	}

	var results []SettlementResult
	for _, trade := range open {
		res := resolutions[trade.MarketID]
		if res == nil {
			continue
		}
		result, err := s.settleTrade(trade, res.Outcome)
		if err != nil {
			logger.Warnf("settle: trade %d on %s failed: %v", trade.ID, trade.MarketID, err)
			continue
		}
		results = append(results, result)
	}

	if len(results) > 0 {
		total := money.Zero
		wins := 0
		for _, r := range results {
			total = total.Add(r.PnL)
			if r.Won {
				wins++
			}
		}
		logger.Infof("settle: %d trades settled, %d wins, total pnl=%s", len(results), wins, total)
	}
	return results, nil
}

// settleTrade realizes one trade against the final outcome. Ordering:
// the status update is the repository commit, the bankroll credit comes
// before the calibration outcome is recorded.
func (s *Settler) settleTrade(trade store.TradeRecord, outcome int) (SettlementResult, error) {
	side := market.Side(trade.Direction)
	won := (side == market.SideYes) == (outcome == 1)

	var pnl money.Money
	var payout money.Money
	if won {
		// A winning token redeems at $1.
		pnl = money.One.Sub(trade.EntryPrice).Mul(trade.Size)
		payout = trade.Size
	} else {
		pnl = trade.EntryPrice.Neg().Mul(trade.Size)
		payout = money.Zero
	}

	status := store.TradeStatusResolvedLoss
	if won {
		status = store.TradeStatusResolvedWin
	}
	if err := s.store.UpdateTradeStatus(trade.ID, status, &pnl); err != nil {
		return SettlementResult{}, err
	}
	s.wallet.Credit(payout)
	s.tracker.Release(trade.MarketID, side)
	if err := s.calibration.RecordResolution(trade.MarketID, outcome); err != nil {
		logger.Warnf("settle: calibration update for %s failed: %v", trade.MarketID, err)
	}

	logger.Infof("settle: trade=%d market=%s side=%s entry=%s pnl=%s won=%v",
		trade.ID, trade.MarketID, side, trade.EntryPrice, pnl, won)
	return SettlementResult{TradeID: trade.ID, MarketID: trade.MarketID, PnL: pnl, Won: won}, nil
}

// MarkPositions fetches the current mid for every market with an open
// position. Markets whose book fetch fails are absent from the result.
func (s *Settler) MarkPositions(ctx context.Context) map[string]money.Money {
	mids := make(map[string]money.Money)
	for _, pos := range s.tracker.Positions() {
		if _, done := mids[pos.MarketID]; done {
			continue
		}
		book, err := s.client.GetOrderBook(ctx, pos.MarketID)
		if err != nil {
			logger.Warnf("mark: book for %s failed: %v", pos.MarketID, err)
			continue
		}
		mids[pos.MarketID] = book.Midpoint
	}
	return mids
}

// StopLossSweep exits every open position whose unrealized loss against
// the given mids exceeds the stop threshold. Paper exits fill instantly
// at the mid.
func (s *Settler) StopLossSweep(mids map[string]money.Money) {
	for _, pos := range s.tracker.Positions() {
		mid, ok := mids[pos.MarketID]
		if !ok {
			continue
		}
		currentValue := sideValue(pos.Side, mid)
		if !pos.EntryPrice.IsPositive() {
			continue
		}
		pnlPct := currentValue.Sub(pos.EntryPrice).Div(pos.EntryPrice)
		if pnlPct.GreaterOrEqual(s.stopLossPct.Neg()) {
			continue
		}

		realized := currentValue.Sub(pos.EntryPrice).Mul(pos.Tokens)
		proceeds := currentValue.Mul(pos.Tokens)
		if err := s.store.UpdateTradeStatus(pos.TradeID, store.TradeStatusCancelled, &realized); err != nil {
			logger.Warnf("stop-loss: cancel trade %d failed: %v", pos.TradeID, err)
			continue
		}
		s.wallet.Credit(proceeds)
		s.tracker.Release(pos.MarketID, pos.Side)
		logger.Warnf("stop-loss: exited %s %s at %s, entry=%s realized=%s",
			pos.MarketID, pos.Side, currentValue, pos.EntryPrice, realized)
	}
}

// sideValue converts a YES mid into the held token's current value.
func sideValue(side market.Side, mid money.Money) money.Money {
	if side == market.SideNo {
		return money.One.Sub(mid)
	}
	return mid
}
