package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polyagent/internal/budget"
	"polyagent/internal/config"
	"polyagent/internal/data"
	"polyagent/internal/execution"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/money"
	"polyagent/internal/risk"
	"polyagent/internal/scheduler"
	"polyagent/internal/store"
	"polyagent/internal/valuation"
)

// metricsEvery is the cycle interval for the summary log.
const metricsEvery = 10

// Deps is everything the controller orchestrates. The app builder wires
// them; tests substitute fakes.
type Deps struct {
	Config     *config.Config
	Store      *store.Store
	Wallet     *execution.PaperWallet
	Scanner    *market.Scanner
	Aggregator *data.Aggregator
	Engine     *valuation.Engine
	Calibrator *valuation.Calibrator
	Accountant *budget.Accountant
	Tracker    *risk.Tracker
	Gateway    execution.Gateway
	Settler    *execution.Settler
}

// Agent is the lifecycle controller: one serial heartbeat loop driving
// survive → settle → scan → value → size → execute.
type Agent struct {
	Deps

	state      market.AgentState
	cycle      int64
	riskCfg    risk.Config
	edgeCfg    valuation.EdgeConfig
	thresholds Thresholds
}

func New(d Deps) (*Agent, error) {
	a := &Agent{
		Deps:  d,
		state: market.StateAlive,
		riskCfg: risk.Config{
			KellyFraction:           d.Config.Risk.KellyFractionMoney(),
			MaxPositionPct:          d.Config.Risk.MaxPositionPctMoney(),
			MaxTotalExposurePct:     d.Config.Risk.MaxTotalExposurePctMoney(),
			MaxPositionsPerCategory: d.Config.Risk.MaxPositionsPerCategory,
			MinPositionUSD:          d.Config.Risk.MinPositionUSDMoney(),
			ProfitCostRatio:         d.Config.Risk.ProfitCostRatioMoney(),
			StopLossPct:             d.Config.Risk.StopLossPctMoney(),
		},
		edgeCfg: valuation.EdgeConfig{
			Base:     d.Config.Valuation.MinEdgeThresholdMoney(),
			HighConf: d.Config.Valuation.HighConfidenceEdgeMoney(),
			LowConf:  d.Config.Valuation.LowConfidenceEdgeMoney(),
		},
		thresholds: Thresholds{
			Death:      d.Config.Agent.DeathThresholdMoney(),
			APIReserve: d.Config.Agent.APIReserveMoney(),
			LowFuel:    d.Config.Agent.LowFuelThresholdMoney(),
		},
	}

	if err := a.Tracker.Restore(a.Store); err != nil {
		return nil, err
	}
	// Resume numbering after a restart.
	last, ok, err := a.Store.MaxCycleNumber()
	if err != nil {
		return nil, err
	}
	if ok {
		a.cycle = last + 1
	}
	logger.Infof("agent: initialized mode=%s cycle=%d bankroll=%s open_positions=%d",
		d.Config.Agent.Mode, a.cycle, a.Wallet.Balance(), a.Tracker.Count())
	return a, nil
}

func (a *Agent) State() market.AgentState { return a.state }
func (a *Agent) CycleNumber() int64       { return a.cycle }

// Run drives the heartbeat until death, a fatal error, or cancellation.
// On signal the current cycle finishes and its record is flushed before
// returning.
func (a *Agent) Run(ctx context.Context) error {
	interval := time.Duration(a.Config.Agent.CycleIntervalSeconds) * time.Second
	var fatal error
	scheduler.NewHeartbeat(interval).Run(ctx, func(ctx context.Context) bool {
		err := a.RunCycle(ctx)
		switch {
		case a.state == market.StateDead:
			return false
		case err == nil:
			return ctx.Err() == nil
		case errors.Is(err, store.ErrRepository):
			fatal = err
			return false
		default:
			// Anything else is absorbed: log and go around again.
			logger.Errorf("agent: cycle %d failed: %v", a.cycle, err)
			return ctx.Err() == nil
		}
	})
	if fatal != nil {
		return fatal
	}
	if a.state == market.StateDead {
		logger.Errorf("agent: dead at cycle %d, bankroll=%s", a.cycle, a.Wallet.Balance())
	}
	return nil
}

// RunCycle executes one full heartbeat iteration. Only repository
// failures propagate as errors; everything else is contained.
func (a *Agent) RunCycle(ctx context.Context) error {
	start := time.Now()
	logger.Infof("agent: cycle %d starting, state=%s", a.cycle, a.state)

	// Survival check on marked-to-market balances.
	mids := a.Settler.MarkPositions(ctx)
	bankroll := a.Wallet.Balance()
	unrealized := a.Tracker.UnrealizedPnL(mids)
	nextCost := a.Accountant.EstimateNextCycleCost()

	oldState := a.state
	a.state = SurvivalCheck(SurvivalInputs{
		Bankroll:      bankroll,
		UnrealizedPnL: unrealized,
		NextCycleCost: nextCost,
	}, a.thresholds)
	if a.state != oldState {
		logger.Warnf("agent: state %s -> %s (bankroll=%s unrealized=%s next_cost=%s)",
			oldState, a.state, bankroll, unrealized, nextCost)
	}

	var scanned, opportunities, placed int64
	var apiCost money.Money

	switch a.state {
	case market.StateDead:
		// Final snapshot, then the loop exits.
		return a.recordCycle(start, scanned, opportunities, placed, apiCost, unrealized)

	case market.StateCriticalSurvival:
		logger.Warnf("agent: critical survival, monitoring only")
		a.Settler.StopLossSweep(mids)
		if _, err := a.Settler.SettleResolutions(ctx); err != nil {
			return err
		}

	case market.StateLowFuel, market.StateAlive:
		a.Settler.StopLossSweep(mids)
		if _, err := a.Settler.SettleResolutions(ctx); err != nil {
			return err
		}

		candidates, err := a.Scanner.Scan(ctx)
		if err != nil {
			logger.Warnf("agent: market scan failed: %v", err)
			break
		}
		if a.state == market.StateLowFuel {
			candidates = market.TopByVolume(candidates, market.LowFuelCandidateLimit)
			logger.Warnf("agent: low fuel, scan truncated to %d candidates", len(candidates))
		}
		scanned = int64(len(candidates))

		opportunities, placed, apiCost, err = a.evaluateAndTrade(ctx, candidates)
		if err != nil {
			return err
		}
	}

	if err := a.recordCycle(start, scanned, opportunities, placed, apiCost, unrealized); err != nil {
		return err
	}
	a.logCostBreakdown(apiCost)
	if a.cycle > 0 && a.cycle%metricsEvery == 0 {
		a.logMetricsSummary()
	}
	a.cycle++
	return nil
}

// evaluateAndTrade runs the per-candidate pipeline: enrichment fetch,
// bounded oracle fan-out, then strictly serial edge/size/execute so the
// bankroll mutates deterministically.
func (a *Agent) evaluateAndTrade(ctx context.Context, candidates []market.Candidate) (opportunities, placed int64, apiCost money.Money, err error) {
	apiCost = money.Zero
	if len(candidates) == 0 {
		return 0, 0, apiCost, nil
	}

	queries := make([]data.Query, 0, len(candidates))
	for _, c := range candidates {
		queries = append(queries, data.Query{
			ConditionID: c.Market.ConditionID,
			Question:    c.Market.Question,
			Category:    c.Market.Category,
		})
	}
	points := a.Aggregator.FetchAll(ctx, queries)

	// Calibration is a pure read, computed once and held for the cycle.
	factor := a.Calibrator.Factor()
	conservative := a.state == market.StateLowFuel

	// Sizing works from the cycle-start bankroll, reduced by capital
	// the cycle itself locks up. Oracle spend burns from the wallet the
	// moment it happens but only enters the sizing base next cycle.
	sizingBankroll := a.Wallet.Balance()

	outcomes := a.Engine.EvaluateAll(ctx, candidates, points, a.cycle)
	budgetLogged := false
	for _, o := range outcomes {
		apiCost = apiCost.Add(o.Cost)
		if o.Err != nil {
			switch {
			case errors.Is(o.Err, budget.ErrBudgetExhausted):
				if !budgetLogged {
					logger.Warnf("agent: daily oracle budget exhausted, skipping remaining candidates")
					budgetLogged = true
				}
			case errors.Is(o.Err, store.ErrRepository):
				return opportunities, placed, apiCost, o.Err
			case ctx.Err() != nil:
				// Cancelled mid-cycle: partially processed markets are
				// discarded, no trade without a complete valuation.
				return opportunities, placed, apiCost, nil
			default:
				logger.Warnf("agent: valuation for %s failed: %v", o.Candidate.Market.ConditionID, o.Err)
			}
			continue
		}

		v := *o.Valuation
		eff := valuation.EffectiveConfidence(v.Confidence, factor)
		edge := valuation.EvaluateEdge(o.Candidate, v, eff, a.edgeCfg, conservative)
		if edge == nil {
			continue
		}
		opportunities++
		logger.Infof("agent: opportunity market=%q fair=%s market_prob=%s edge=%s side=%s confidence=%s",
			o.Candidate.Market.Question, edge.FairProb, edge.MarketProb, edge.Edge, edge.Side, eff)

		lockedUSD, err := a.sizeAndExecute(ctx, o.Candidate, v, eff, edge, sizingBankroll)
		if err != nil {
			return opportunities, placed, apiCost, err
		}
		if lockedUSD.IsPositive() {
			placed++
			sizingBankroll = sizingBankroll.Sub(lockedUSD)
		}
	}
	return opportunities, placed, apiCost, nil
}

// sizeAndExecute sizes one opportunity and routes the order. Returns
// the USD locked into the position, zero when skipped.
func (a *Agent) sizeAndExecute(ctx context.Context, c market.Candidate, v valuation.Valuation, eff money.Money, edge *valuation.EdgeResult, bankroll money.Money) (money.Money, error) {
	if a.Tracker.Has(c.Market.ConditionID, edge.Side) {
		logger.Debugf("agent: already positioned in %s %s, skipping", c.Market.ConditionID, edge.Side)
		return money.Zero, nil
	}

	// Direction-adjusted win probability: betting NO wins when YES
	// fails to happen.
	p := edge.FairProb
	if edge.Side == market.SideNo {
		p = money.One.Sub(edge.FairProb)
	}

	result := risk.Size(risk.SizeRequest{
		FairProb:            p,
		EntryPrice:          edge.TradePrice,
		EffectiveConfidence: eff,
		Bankroll:            bankroll,
		StateScale:          risk.StateScale(a.state),
		CurrentExposure:     a.Tracker.TotalExposure(),
		CategoryOpenCount:   a.Tracker.CategoryCount(c.Market.Category),
		DepthAtOrBetter:     risk.DepthAtOrBetter(c.Book, edge.Side, edge.TradePrice),
		Edge:                edge.Edge,
		OracleCost:          a.Engine.EstimateCallCost(),
	}, a.riskCfg)
	if !result.ShouldTrade() {
		logger.Infof("agent: no trade on %s: %s (kelly_raw=%s)", c.Market.ConditionID, result.Reason, result.KellyRaw)
		return money.Zero, nil
	}

	tokens := result.PositionUSD.Div(edge.TradePrice)
	order := execution.OrderRequest{
		Cycle:         a.cycle,
		Market:        c.Market,
		Side:          edge.Side,
		Price:         edge.TradePrice,
		Tokens:        tokens,
		TTLSeconds:    a.Config.Execution.OrderTTLSeconds,
		Edge:          edge.Edge,
		FairValue:     v.Probability,
		Confidence:    v.Confidence,
		KellyRaw:      result.KellyRaw,
		KellyAdjusted: result.KellyAdjusted,
	}
	placed, err := a.Gateway.PlaceLimitOrder(ctx, order)
	if err != nil {
		return money.Zero, fmt.Errorf("agent: order placement: %w", err)
	}
	if !placed.Filled() {
		logger.Warnf("agent: order on %s not filled: %s", c.Market.ConditionID, placed.Reason)
		return money.Zero, nil
	}

	// Trade row is persisted by the gateway; only now does the tracker
	// learn about the position.
	if _, err := a.Tracker.Add(risk.Position{
		TradeID:    placed.TradeID,
		MarketID:   c.Market.ConditionID,
		Question:   c.Market.Question,
		Category:   c.Market.Category,
		Side:       edge.Side,
		EntryPrice: edge.TradePrice,
		Tokens:     tokens,
		SizeUSD:    order.CostUSD(),
	}); err != nil {
		return money.Zero, err
	}
	if err := a.Calibrator.RecordPrediction(c.Market.ConditionID, v, edge.TradePrice); err != nil {
		return money.Zero, err
	}

	logger.Infof("agent: trade placed market=%q side=%s price=%s tokens=%s size_usd=%s exposure=%s",
		c.Market.Question, edge.Side, edge.TradePrice, tokens, order.CostUSD(), a.Tracker.TotalExposure())
	return order.CostUSD(), nil
}

func (a *Agent) recordCycle(start time.Time, scanned, opportunities, placed int64, apiCost, unrealized money.Money) error {
	duration := time.Since(start)
	rec := store.CycleRecord{
		CycleNumber:        a.cycle,
		MarketsScanned:     scanned,
		OpportunitiesFound: opportunities,
		TradesPlaced:       placed,
		APICost:            apiCost,
		Bankroll:           a.Wallet.Balance(),
		UnrealizedPnL:      unrealized,
		AgentState:         string(a.state),
		DurationMs:         duration.Milliseconds(),
	}
	if err := a.Store.InsertCycle(rec); err != nil {
		return err
	}
	logger.Infof("agent: cycle %d complete state=%s duration_ms=%d scanned=%d opportunities=%d placed=%d api_cost=%s bankroll=%s unrealized=%s",
		a.cycle, a.state, rec.DurationMs, scanned, opportunities, placed, apiCost, rec.Bankroll, unrealized)
	return nil
}

// logCostBreakdown reports cycle spend against lifetime burn rate.
func (a *Agent) logCostBreakdown(cycleCost money.Money) {
	total, err := a.Store.TotalAPICost()
	if err != nil {
		logger.Warnf("agent: cost breakdown unavailable: %v", err)
		return
	}
	cycles, err := a.Store.CycleCount()
	if err != nil || cycles == 0 {
		return
	}
	burnRate := total.Div(money.FromInt(cycles))
	logger.Infof("agent: cost breakdown cycle_cost=%s cumulative=%s burn_rate=%s/cycle",
		cycleCost, total, burnRate)
}

// logMetricsSummary aggregates resolved-trade performance.
func (a *Agent) logMetricsSummary() {
	resolved, err := a.Store.ListResolvedTrades()
	if err != nil {
		logger.Warnf("agent: metrics unavailable: %v", err)
		return
	}
	if len(resolved) == 0 {
		return
	}
	wins := 0
	totalPnL := money.Zero
	for _, t := range resolved {
		if t.Status == store.TradeStatusResolvedWin {
			wins++
		}
		if t.PnL != nil {
			totalPnL = totalPnL.Add(*t.PnL)
		}
	}
	winRate := money.FromInt(int64(wins)).Div(money.FromInt(int64(len(resolved))))
	logger.Infof("agent: metrics resolved=%d wins=%d win_rate=%s total_pnl=%s bankroll=%s",
		len(resolved), wins, winRate, totalPnL, a.Wallet.Balance())
}
