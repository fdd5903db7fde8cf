// Package risk sizes positions with a risk-scaled Kelly criterion and
// enforces the portfolio-level caps around it.
package risk

import (
	"polyagent/internal/market"
	"polyagent/internal/money"
)

// Config carries the [risk] table, already parsed into Money.
type Config struct {
	KellyFraction           money.Money
	MaxPositionPct          money.Money
	MaxTotalExposurePct     money.Money
	MaxPositionsPerCategory int
	MinPositionUSD          money.Money
	ProfitCostRatio         money.Money
	StopLossPct             money.Money
}

// StateScale maps the lifecycle state onto the Kelly multiplier.
func StateScale(state market.AgentState) money.Money {
	switch state {
	case market.StateAlive:
		return money.One
	case market.StateLowFuel:
		return money.MustParse("0.25")
	default: // CriticalSurvival, Dead
		return money.Zero
	}
}

// SizeRequest is everything the sizer needs for one candidate. FairProb
// and EntryPrice are already direction-adjusted: for a NO bet the
// caller passes p = 1 − fair and the NO token price.
type SizeRequest struct {
	FairProb            money.Money
	EntryPrice          money.Money
	EffectiveConfidence money.Money
	Bankroll            money.Money
	StateScale          money.Money
	CurrentExposure     money.Money
	CategoryOpenCount   int
	// DepthAtOrBetter is the USD notional restable at or better than
	// the entry price on the relevant book side.
	DepthAtOrBetter money.Money
	Edge            money.Money
	OracleCost      money.Money
}

// SizeResult reports the sizing decision. A zero PositionUSD means skip;
// Reason says why.
type SizeResult struct {
	KellyRaw      money.Money
	KellyAdjusted money.Money
	PositionUSD   money.Money
	Capped        bool
	Reason        string
}

func (r SizeResult) ShouldTrade() bool { return r.PositionUSD.IsPositive() }

func skip(raw, adjusted money.Money, reason string) SizeResult {
	return SizeResult{KellyRaw: raw, KellyAdjusted: adjusted, Reason: reason}
}

// Size computes the half-Kelly position with every constraint applied
// in fixed order; constraints only ever shrink the position.
func Size(req SizeRequest, cfg Config) SizeResult {
	// Degenerate inputs are rejected outright.
	if !req.EntryPrice.IsPositive() || req.EntryPrice.GreaterOrEqual(money.One) {
		return skip(money.Zero, money.Zero, "entry price outside (0,1)")
	}
	if req.Bankroll.LessOrEqual(money.Zero) {
		return skip(money.Zero, money.Zero, "no bankroll")
	}

	// b = (1 / entry) − 1: net decimal odds.
	b := money.One.Div(req.EntryPrice).Sub(money.One)
	if b.LessOrEqual(money.Zero) {
		return skip(money.Zero, money.Zero, "non-positive odds")
	}

	p := req.FairProb
	q := money.One.Sub(p)
	kellyRaw := p.Mul(b).Sub(q).Div(b)
	if kellyRaw.LessOrEqual(money.Zero) {
		return skip(kellyRaw, money.Zero, "no edge per kelly")
	}

	kellyAdjusted := kellyRaw.
		Mul(cfg.KellyFraction).
		Mul(req.EffectiveConfidence).
		Mul(req.StateScale)
	if !kellyAdjusted.IsPositive() {
		return skip(kellyRaw, kellyAdjusted, "state forbids new positions")
	}

	// 1. Target from adjusted Kelly.
	position := kellyAdjusted.Mul(req.Bankroll)
	capped := false

	// 2. Per-position cap.
	maxPosition := cfg.MaxPositionPct.Mul(req.Bankroll)
	if position.GreaterThan(maxPosition) {
		position = maxPosition
		capped = true
	}

	// 3. Total exposure cap.
	headroom := cfg.MaxTotalExposurePct.Mul(req.Bankroll).Sub(req.CurrentExposure)
	if headroom.LessOrEqual(money.Zero) {
		return skip(kellyRaw, kellyAdjusted, "exposure cap reached")
	}
	if position.GreaterThan(headroom) {
		position = headroom
		capped = true
	}

	// 4. Category concentration: skip, never shrink.
	if req.CategoryOpenCount+1 > cfg.MaxPositionsPerCategory {
		return skip(kellyRaw, kellyAdjusted, "category cap reached")
	}

	// 5. Liquidity-aware cap.
	liquidityCap := liquidityFraction.Mul(req.DepthAtOrBetter)
	if position.GreaterThan(liquidityCap) {
		position = liquidityCap
		capped = true
	}

	// 6. Dust floor.
	if position.LessThan(cfg.MinPositionUSD) {
		return skip(kellyRaw, kellyAdjusted, "below minimum position")
	}

	// Edge-justifies-cost gate: the trade's expected value must cover
	// the oracle call that found it.
	expectedProfit := req.Edge.Mul(position)
	if expectedProfit.LessThan(req.OracleCost.Mul(cfg.ProfitCostRatio)) {
		return skip(kellyRaw, kellyAdjusted, "edge does not justify oracle cost")
	}

	return SizeResult{
		KellyRaw:      kellyRaw,
		KellyAdjusted: kellyAdjusted,
		PositionUSD:   position,
		Capped:        capped,
	}
}
