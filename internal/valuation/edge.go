package valuation

import (
	"polyagent/internal/market"
	"polyagent/internal/money"
)

// Confidence bands for the threshold ladder.
var (
	confHigh = money.MustParse("0.8")
	confMid  = money.MustParse("0.5")
)

// EdgeConfig carries the three confidence-scaled thresholds.
type EdgeConfig struct {
	Base     money.Money // medium confidence
	HighConf money.Money
	LowConf  money.Money
}

// EdgeResult describes a candidate that cleared the edge gate.
type EdgeResult struct {
	Edge       money.Money
	Threshold  money.Money
	Side       market.Side
	FairProb   money.Money
	MarketProb money.Money
	// TradePrice is the entry price for the chosen side's token.
	TradePrice money.Money
}

// EvaluateEdge compares the oracle's fair probability to the market's
// implied probability. Returns nil when the edge does not clear the
// confidence-scaled threshold. conservative forces the strictest
// threshold regardless of confidence (LowFuel behavior).
func EvaluateEdge(c market.Candidate, v Valuation, effectiveConfidence money.Money, cfg EdgeConfig, conservative bool) *EdgeResult {
	marketProb := c.Book.ImpliedProbability()
	edgeYes := v.Probability.Sub(marketProb)

	threshold := cfg.LowConf
	if !conservative {
		switch {
		case effectiveConfidence.GreaterOrEqual(confHigh):
			threshold = cfg.HighConf
		case effectiveConfidence.GreaterOrEqual(confMid):
			threshold = cfg.Base
		}
	}

	side := market.SideYes
	edge := edgeYes
	if edgeYes.IsNegative() {
		side = market.SideNo
		edge = edgeYes.Neg()
	}
	if edge.LessThan(threshold) {
		return nil
	}

	tradePrice := c.Book.Midpoint
	if side == market.SideNo {
		tradePrice = money.One.Sub(c.Book.Midpoint)
	}
	return &EdgeResult{
		Edge:       edge,
		Threshold:  threshold,
		Side:       side,
		FairProb:   v.Probability,
		MarketProb: marketProb,
		TradePrice: tradePrice,
	}
}
