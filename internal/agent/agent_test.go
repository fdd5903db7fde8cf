package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyagent/internal/budget"
	"polyagent/internal/config"
	"polyagent/internal/data"
	"polyagent/internal/execution"
	"polyagent/internal/market"
	"polyagent/internal/money"
	"polyagent/internal/risk"
	"polyagent/internal/store"
	"polyagent/internal/valuation"
)

// fakeExchange serves scripted markets, books and resolutions.
type fakeExchange struct {
	markets     []market.Market
	books       map[string]market.OrderBook
	resolutions map[string]*market.Resolution
}

func (f *fakeExchange) ListMarkets(context.Context, market.Filters) ([]market.Market, error) {
	return f.markets, nil
}

func (f *fakeExchange) GetOrderBook(_ context.Context, conditionID string) (market.OrderBook, error) {
	book, ok := f.books[conditionID]
	if !ok {
		return market.OrderBook{}, fmt.Errorf("no book for %s", conditionID)
	}
	return book, nil
}

func (f *fakeExchange) GetResolution(_ context.Context, conditionID string) (*market.Resolution, error) {
	return f.resolutions[conditionID], nil
}

func (f *fakeExchange) PlaceLimitOrder(context.Context, market.LimitOrder) (string, error) {
	return "", market.ErrNotImplemented
}

// scriptedOracle returns one canned valuation for every market.
type scriptedOracle struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (o *scriptedOracle) Complete(context.Context, string, string) (valuation.OracleResponse, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	return valuation.OracleResponse{Text: o.text, InputTokens: 2000, OutputTokens: 300}, nil
}

func oracleJSON(prob, conf string) string {
	return fmt.Sprintf(`{
		"probability": %s,
		"confidence": %s,
		"reasoning_summary": "scripted",
		"key_factors": ["test"],
		"data_quality": "high",
		"time_sensitivity": "days"
	}`, prob, conf)
}

func testMarket(id, question string) market.Market {
	return market.Market{
		ConditionID: id,
		Question:    question,
		Outcomes:    []string{"Yes", "No"},
		Tokens: []market.TokenInfo{
			{TokenID: id + "-yes", Outcome: "Yes"},
			{TokenID: id + "-no", Outcome: "No"},
		},
		EndDate:   time.Now().Add(7 * 24 * time.Hour),
		Category:  market.CategoryWeather,
		Volume24h: money.MustParse("10000"),
		Active:    true,
	}
}

func bookAt(mid, spread string) market.OrderBook {
	m := money.MustParse(mid)
	half := money.MustParse(spread).Div(money.FromInt(2))
	return market.OrderBook{
		Bids:     []market.PriceLevel{{Price: m.Sub(half), Size: money.MustParse("1000")}},
		Asks:     []market.PriceLevel{{Price: m, Size: money.MustParse("1000")}},
		Spread:   money.MustParse(spread),
		Midpoint: m,
	}
}

type fixture struct {
	agent    *Agent
	store    *store.Store
	wallet   *execution.PaperWallet
	exchange *fakeExchange
	oracle   *scriptedOracle
}

func newFixture(t *testing.T, balance string, oracle *scriptedOracle, exchange *fakeExchange, dailyBudget string) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.DailyAPIBudget = dailyBudget

	st, err := store.New(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	wallet := execution.NewPaperWallet(money.MustParse(balance))
	scanner := market.NewScanner(exchange, market.ScanConfig{
		MaxMarkets:        cfg.Scanning.MaxMarkets,
		MinVolume24h:      cfg.Scanning.MinVolume24hMoney(),
		MaxResolutionDays: cfg.Scanning.MaxResolutionDays,
		MaxSpreadPct:      cfg.Scanning.MaxSpreadPctMoney(),
	}, 1000, 100)

	accountant := budget.NewAccountant(st, cfg.Agent.DailyAPIBudgetMoney(), 10)
	calibrator := valuation.NewCalibrator(st)
	engine := valuation.NewEngine(oracle, st, wallet, accountant,
		valuation.Pricing{PriceIn: cfg.Valuation.PriceInMoney(), PriceOut: cfg.Valuation.PriceOutMoney()},
		cfg.Valuation.ModelName,
		time.Duration(cfg.Valuation.CacheTTLSeconds)*time.Second,
		cfg.Valuation.CacheBypassPriceMoveMoney(),
		cfg.Valuation.MaxConcurrentCalls,
	)
	tracker := risk.NewTracker()
	settler := execution.NewSettler(st, exchange, tracker, wallet, calibrator, cfg.Risk.StopLossPctMoney())

	a, err := New(Deps{
		Config:     cfg,
		Store:      st,
		Wallet:     wallet,
		Scanner:    scanner,
		Aggregator: data.NewAggregator(),
		Engine:     engine,
		Calibrator: calibrator,
		Accountant: accountant,
		Tracker:    tracker,
		Gateway:    execution.NewPaperGateway(st, wallet),
		Settler:    settler,
	})
	require.NoError(t, err)
	return &fixture{agent: a, store: st, wallet: wallet, exchange: exchange, oracle: oracle}
}

// Scenario: fresh paper start with no edge. One oracle call is paid for,
// no trade is placed.
func TestCycleNoEdge(t *testing.T) {
	exchange := &fakeExchange{
		markets: []market.Market{testMarket("m1", "Will it rain in Chicago?")},
		books:   map[string]market.OrderBook{"m1": bookAt("0.50", "0.02")},
	}
	f := newFixture(t, "100.00", &scriptedOracle{text: oracleJSON("0.51", "0.60")}, exchange, "5")

	require.NoError(t, f.agent.RunCycle(context.Background()))

	// edge 0.01 < 0.08 threshold: no trade, one oracle call burned.
	open, err := f.store.ListOpenTrades()
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.True(t, f.wallet.Balance().Equal(money.MustParse("99.9895")), f.wallet.Balance().String())
	assert.Equal(t, market.StateAlive, f.agent.State())
}

// Scenario: clear edge is sized by half-Kelly, capped at 6%, and filled.
func TestCycleClearEdgeFilled(t *testing.T) {
	exchange := &fakeExchange{
		markets: []market.Market{testMarket("m1", "Will it rain in Chicago?")},
		books:   map[string]market.OrderBook{"m1": bookAt("0.40", "0.02")},
	}
	f := newFixture(t, "100.00", &scriptedOracle{text: oracleJSON("0.60", "0.80")}, exchange, "5")

	require.NoError(t, f.agent.RunCycle(context.Background()))

	open, err := f.store.ListOpenTrades()
	require.NoError(t, err)
	require.Len(t, open, 1)
	trade := open[0]
	assert.Equal(t, "YES", trade.Direction)
	assert.True(t, trade.EntryPrice.Equal(money.MustParse("0.40")))
	// kelly_raw = 1/3, adjusted 0.1333… → capped at $6 → 15 tokens.
	assert.True(t, trade.Size.Equal(money.MustParse("15")), trade.Size.String())
	assert.True(t, trade.EdgeAtEntry.Equal(money.MustParse("0.20")))

	// $6 in exposure plus the oracle call out of the bankroll.
	assert.True(t, f.wallet.Balance().Equal(money.MustParse("93.9895")), f.wallet.Balance().String())
	assert.True(t, f.agent.Tracker.TotalExposure().Equal(money.MustParse("6")))
}

// Scenario: the prior position resolves YES; bankroll is credited and
// calibration closes with a correct forecast.
func TestCycleResolutionWin(t *testing.T) {
	exchange := &fakeExchange{
		markets: []market.Market{testMarket("m1", "Will it rain in Chicago?")},
		books:   map[string]market.OrderBook{"m1": bookAt("0.40", "0.02")},
	}
	f := newFixture(t, "100.00", &scriptedOracle{text: oracleJSON("0.60", "0.80")}, exchange, "5")

	require.NoError(t, f.agent.RunCycle(context.Background()))
	require.Equal(t, 1, f.agent.Tracker.Count())
	balanceAfterEntry := f.wallet.Balance()

	// Market resolves YES before the next heartbeat and leaves the
	// active listing.
	f.exchange.resolutions = map[string]*market.Resolution{"m1": {Outcome: 1}}
	f.exchange.markets = nil
	require.NoError(t, f.agent.RunCycle(context.Background()))

	trades, err := f.store.ListTradesByMarket("m1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, store.TradeStatusResolvedWin, trades[0].Status)
	require.NotNil(t, trades[0].PnL)
	// P&L = (1 − 0.40) × 15 = 9.
	assert.True(t, trades[0].PnL.Equal(money.MustParse("9")))
	// Payout of $15 lands on the bankroll.
	assert.True(t, f.wallet.Balance().Equal(balanceAfterEntry.Add(money.MustParse("15"))))
	assert.Equal(t, 0, f.agent.Tracker.Count())

	total, correct, err := f.store.CalibrationStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), correct)
}

// Scenario: the daily budget runs out mid-cycle; remaining candidates
// are skipped and the cycle records only evaluated markets.
func TestCycleBudgetExhaustedMidCycle(t *testing.T) {
	markets := make([]market.Market, 0, 6)
	books := make(map[string]market.OrderBook, 6)
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("m%d", i)
		markets = append(markets, testMarket(id, fmt.Sprintf("Will storm %d hit?", i)))
		books[id] = bookAt("0.50", "0.02")
	}
	exchange := &fakeExchange{markets: markets, books: books}
	// Per call 0.0105: four calls spend 0.042; a fifth would need
	// 0.0525 > 0.05 and is refused.
	f := newFixture(t, "100.00", &scriptedOracle{text: oracleJSON("0.51", "0.60")}, exchange, "0.05")

	require.NoError(t, f.agent.RunCycle(context.Background()))
	assert.Equal(t, 4, f.oracle.calls)

	spent, err := f.store.SumCostSince(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, spent.Equal(money.MustParse("0.042")), spent.String())
	assert.True(t, spent.LessOrEqual(money.MustParse("0.05")))
}

// Scenario: a thin bankroll drops the agent into LowFuel. Sizing runs
// at quarter-Kelly, which on a $9.50 bankroll lands below the $1
// minimum, so the opportunity is seen but no order goes out.
func TestCycleLowFuel(t *testing.T) {
	exchange := &fakeExchange{
		markets: []market.Market{testMarket("m1", "Will it rain in Chicago?")},
		books:   map[string]market.OrderBook{"m1": bookAt("0.40", "0.02")},
	}
	// Huge edge and confidence so the strict LowFuel threshold passes.
	f := newFixture(t, "9.50", &scriptedOracle{text: oracleJSON("0.75", "0.95")}, exchange, "5")

	require.NoError(t, f.agent.RunCycle(context.Background()))
	assert.Equal(t, market.StateLowFuel, f.agent.State())

	open, err := f.store.ListOpenTrades()
	require.NoError(t, err)
	assert.Empty(t, open)

	// The quarter scale itself is asserted against the sizer: the same
	// inputs on a healthy bankroll produce a position, and the LowFuel
	// scale is exactly a quarter of it before caps.
	alive := risk.Size(sizeRequest("100", money.One), defaultRiskConfig(f))
	quarter := risk.Size(sizeRequest("100", risk.StateScale(market.StateLowFuel)), defaultRiskConfig(f))
	assert.True(t, quarter.KellyAdjusted.Equal(alive.KellyAdjusted.Mul(money.MustParse("0.25"))))
}

func sizeRequest(bankroll string, scale money.Money) risk.SizeRequest {
	return risk.SizeRequest{
		FairProb:            money.MustParse("0.75"),
		EntryPrice:          money.MustParse("0.40"),
		EffectiveConfidence: money.MustParse("0.95"),
		Bankroll:            money.MustParse(bankroll),
		StateScale:          scale,
		DepthAtOrBetter:     money.MustParse("1000"),
		Edge:                money.MustParse("0.35"),
		OracleCost:          money.MustParse("0.0105"),
	}
}

func defaultRiskConfig(f *fixture) risk.Config {
	cfg := f.agent.Config.Risk
	return risk.Config{
		KellyFraction:           cfg.KellyFractionMoney(),
		MaxPositionPct:          cfg.MaxPositionPctMoney(),
		MaxTotalExposurePct:     cfg.MaxTotalExposurePctMoney(),
		MaxPositionsPerCategory: cfg.MaxPositionsPerCategory,
		MinPositionUSD:          cfg.MinPositionUSDMoney(),
		ProfitCostRatio:         cfg.ProfitCostRatioMoney(),
		StopLossPct:             cfg.StopLossPctMoney(),
	}
}

// Scenario: effective balance at or below zero is death; the final
// cycle record is persisted and the loop exits.
func TestCycleDeath(t *testing.T) {
	exchange := &fakeExchange{
		markets: []market.Market{testMarket("m1", "Will it rain in Chicago?")},
		books:   map[string]market.OrderBook{"m1": bookAt("0.40", "0.02")},
	}
	f := newFixture(t, "100.00", &scriptedOracle{text: oracleJSON("0.60", "0.80")}, exchange, "5")

	// Enter a position, then gut the bankroll and crash the market so
	// bankroll + unrealized ≤ 0.
	require.NoError(t, f.agent.RunCycle(context.Background()))
	require.Equal(t, 1, f.agent.Tracker.Count())
	f.wallet.DebitOracleCost(f.wallet.Balance().Sub(money.MustParse("0.20")))
	f.exchange.books["m1"] = bookAt("0.37", "0.02") // −0.03 × 15 = −0.45 unrealized

	require.NoError(t, f.agent.RunCycle(context.Background()))
	assert.Equal(t, market.StateDead, f.agent.State())

	// The final record is persisted under the current cycle number.
	last, ok, err := f.store.MaxCycleNumber()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.agent.CycleNumber(), last)
}

// P2: a second cycle with a still-open position does not double-bet the
// same market and direction.
func TestCycleNoDuplicatePosition(t *testing.T) {
	exchange := &fakeExchange{
		markets: []market.Market{testMarket("m1", "Will it rain in Chicago?")},
		books:   map[string]market.OrderBook{"m1": bookAt("0.40", "0.02")},
	}
	f := newFixture(t, "100.00", &scriptedOracle{text: oracleJSON("0.60", "0.80")}, exchange, "5")

	require.NoError(t, f.agent.RunCycle(context.Background()))
	require.NoError(t, f.agent.RunCycle(context.Background()))

	open, err := f.store.ListOpenTrades()
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

// Cycle numbering resumes past the last persisted cycle on restart.
func TestCycleNumberResumes(t *testing.T) {
	exchange := &fakeExchange{books: map[string]market.OrderBook{}}
	f := newFixture(t, "100.00", &scriptedOracle{text: oracleJSON("0.5", "0.5")}, exchange, "5")

	require.NoError(t, f.agent.RunCycle(context.Background()))
	require.NoError(t, f.agent.RunCycle(context.Background()))
	assert.Equal(t, int64(2), f.agent.CycleNumber())

	rebuilt, err := New(f.agent.Deps)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rebuilt.CycleNumber())
}
