package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyagent/internal/market"
	"polyagent/internal/money"
	"polyagent/internal/risk"
	"polyagent/internal/store"
)

// fakeExchange serves canned resolutions and order books.
type fakeExchange struct {
	resolutions map[string]*market.Resolution
	books       map[string]market.OrderBook
}

func (f *fakeExchange) ListMarkets(context.Context, market.Filters) ([]market.Market, error) {
	return nil, nil
}

func (f *fakeExchange) GetOrderBook(_ context.Context, conditionID string) (market.OrderBook, error) {
	return f.books[conditionID], nil
}

func (f *fakeExchange) GetResolution(_ context.Context, conditionID string) (*market.Resolution, error) {
	return f.resolutions[conditionID], nil
}

func (f *fakeExchange) PlaceLimitOrder(context.Context, market.LimitOrder) (string, error) {
	return "", market.ErrNotImplemented
}

type fakeRecorder struct {
	outcomes map[string]int
}

func (f *fakeRecorder) RecordResolution(marketID string, outcome int) error {
	if f.outcomes == nil {
		f.outcomes = make(map[string]int)
	}
	f.outcomes[marketID] = outcome
	return nil
}

// placeTestTrade fills a paper order and registers the position.
func placeTestTrade(t *testing.T, s *store.Store, wallet *PaperWallet, tracker *risk.Tracker, marketID string, side market.Side, price, tokens string) int64 {
	t.Helper()
	req := orderRequest(tokens, price)
	req.Market.ConditionID = marketID
	req.Side = side
	gw := NewPaperGateway(s, wallet)
	result, err := gw.PlaceLimitOrder(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Filled())
	_, err = tracker.Add(risk.Position{
		TradeID:    result.TradeID,
		MarketID:   marketID,
		Question:   req.Market.Question,
		Category:   req.Market.Category,
		Side:       side,
		EntryPrice: req.Price,
		Tokens:     req.Tokens,
		SizeUSD:    req.CostUSD(),
	})
	require.NoError(t, err)
	return result.TradeID
}

func newSettler(s *store.Store, exchange *fakeExchange, tracker *risk.Tracker, wallet *PaperWallet, rec *fakeRecorder) *Settler {
	return NewSettler(s, exchange, tracker, wallet, rec, money.MustParse("0.20"))
}

func TestSettleWin(t *testing.T) {
	s := newTestStore(t)
	wallet := NewPaperWallet(money.MustParse("100"))
	tracker := risk.NewTracker()
	tradeID := placeTestTrade(t, s, wallet, tracker, "m1", market.SideYes, "0.40", "15")
	require.True(t, wallet.Balance().Equal(money.MustParse("94")))

	exchange := &fakeExchange{resolutions: map[string]*market.Resolution{
		"m1": {Outcome: 1},
	}}
	rec := &fakeRecorder{}
	settler := newSettler(s, exchange, tracker, wallet, rec)

	results, err := settler.SettleResolutions(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Won)
	// P&L = (1 − 0.40) × 15 = 9; payout = 15.
	assert.True(t, results[0].PnL.Equal(money.MustParse("9")))
	assert.True(t, wallet.Balance().Equal(money.MustParse("109")), wallet.Balance().String())
	assert.Equal(t, 0, tracker.Count())
	assert.Equal(t, 1, rec.outcomes["m1"])

	trades, err := s.ListTradesByMarket("m1")
	require.NoError(t, err)
	assert.Equal(t, store.TradeStatusResolvedWin, trades[0].Status)

	_ = tradeID
}

func TestSettleLoss(t *testing.T) {
	s := newTestStore(t)
	wallet := NewPaperWallet(money.MustParse("100"))
	tracker := risk.NewTracker()
	placeTestTrade(t, s, wallet, tracker, "m1", market.SideYes, "0.40", "15")

	exchange := &fakeExchange{resolutions: map[string]*market.Resolution{
		"m1": {Outcome: 0},
	}}
	settler := newSettler(s, exchange, tracker, wallet, &fakeRecorder{})

	results, err := settler.SettleResolutions(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Won)
	assert.True(t, results[0].PnL.Equal(money.MustParse("-6")))
	// Nothing comes back on a loss.
	assert.True(t, wallet.Balance().Equal(money.MustParse("94")))
}

func TestSettleNoSideWin(t *testing.T) {
	s := newTestStore(t)
	wallet := NewPaperWallet(money.MustParse("100"))
	tracker := risk.NewTracker()
	// NO bought at 0.30, 10 tokens → $3 reserved.
	placeTestTrade(t, s, wallet, tracker, "m1", market.SideNo, "0.30", "10")

	exchange := &fakeExchange{resolutions: map[string]*market.Resolution{
		"m1": {Outcome: 0}, // NO wins
	}}
	settler := newSettler(s, exchange, tracker, wallet, &fakeRecorder{})

	results, err := settler.SettleResolutions(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Won)
	// P&L = (1 − 0.30) × 10 = 7; payout 10: 97 + 10 = 107.
	assert.True(t, results[0].PnL.Equal(money.MustParse("7")))
	assert.True(t, wallet.Balance().Equal(money.MustParse("107")), wallet.Balance().String())
}

func TestSettleIdempotent(t *testing.T) {
	s := newTestStore(t)
	wallet := NewPaperWallet(money.MustParse("100"))
	tracker := risk.NewTracker()
	placeTestTrade(t, s, wallet, tracker, "m1", market.SideYes, "0.40", "15")

	exchange := &fakeExchange{resolutions: map[string]*market.Resolution{
		"m1": {Outcome: 1},
	}}
	settler := newSettler(s, exchange, tracker, wallet, &fakeRecorder{})

	_, err := settler.SettleResolutions(context.Background())
	require.NoError(t, err)
	balanceAfter := wallet.Balance()

	// Second sweep with the same resolution: no double credit, no
	// status churn.
	again, err := settler.SettleResolutions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.True(t, wallet.Balance().Equal(balanceAfter))
}

func TestSettleUnresolvedUntouched(t *testing.T) {
	s := newTestStore(t)
	wallet := NewPaperWallet(money.MustParse("100"))
	tracker := risk.NewTracker()
	placeTestTrade(t, s, wallet, tracker, "m1", market.SideYes, "0.40", "15")

	exchange := &fakeExchange{resolutions: map[string]*market.Resolution{}}
	settler := newSettler(s, exchange, tracker, wallet, &fakeRecorder{})

	results, err := settler.SettleResolutions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, tracker.Count())
}

func TestStopLossExit(t *testing.T) {
	s := newTestStore(t)
	wallet := NewPaperWallet(money.MustParse("100"))
	tracker := risk.NewTracker()
	tradeID := placeTestTrade(t, s, wallet, tracker, "m1", market.SideYes, "0.60", "10")

	// Mid dropped to 0.40: loss 33% > 20% stop.
	exchange := &fakeExchange{books: map[string]market.OrderBook{
		"m1": {Midpoint: money.MustParse("0.40")},
	}}
	settler := newSettler(s, exchange, tracker, wallet, &fakeRecorder{})

	mids := settler.MarkPositions(context.Background())
	assert.True(t, mids["m1"].Equal(money.MustParse("0.40")))
	settler.StopLossSweep(mids)
	assert.Equal(t, 0, tracker.Count())

	// Exited at 0.40 × 10 = $4 back: 94 + 4 = 98.
	assert.True(t, wallet.Balance().Equal(money.MustParse("98")), wallet.Balance().String())

	trades, err := s.ListTradesByMarket("m1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, store.TradeStatusCancelled, trades[0].Status)
	require.NotNil(t, trades[0].PnL)
	assert.True(t, trades[0].PnL.Equal(money.MustParse("-2")))
	_ = tradeID
}

func TestStopLossHoldsWithinTolerance(t *testing.T) {
	s := newTestStore(t)
	wallet := NewPaperWallet(money.MustParse("100"))
	tracker := risk.NewTracker()
	placeTestTrade(t, s, wallet, tracker, "m1", market.SideYes, "0.50", "10")

	// 10% drawdown stays inside the 20% stop.
	exchange := &fakeExchange{books: map[string]market.OrderBook{
		"m1": {Midpoint: money.MustParse("0.45")},
	}}
	settler := newSettler(s, exchange, tracker, wallet, &fakeRecorder{})

	settler.StopLossSweep(settler.MarkPositions(context.Background()))
	assert.Equal(t, 1, tracker.Count())
}

func TestStopLossNoSide(t *testing.T) {
	s := newTestStore(t)
	wallet := NewPaperWallet(money.MustParse("100"))
	tracker := risk.NewTracker()
	// NO at 0.40; YES mid rising to 0.75 puts the NO value at 0.25,
	// a 37.5% loss.
	placeTestTrade(t, s, wallet, tracker, "m1", market.SideNo, "0.40", "10")

	exchange := &fakeExchange{books: map[string]market.OrderBook{
		"m1": {Midpoint: money.MustParse("0.75")},
	}}
	settler := newSettler(s, exchange, tracker, wallet, &fakeRecorder{})

	settler.StopLossSweep(settler.MarkPositions(context.Background()))
	assert.Equal(t, 0, tracker.Count())
	// Proceeds 0.25 × 10 = 2.5: 96 + 2.5 = 98.5.
	assert.True(t, wallet.Balance().Equal(money.MustParse("98.5")), wallet.Balance().String())
}
