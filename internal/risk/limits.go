package risk

import (
	"polyagent/internal/market"
	"polyagent/internal/money"
)

// liquidityFraction caps a position at this share of the restable depth
// so one order never dominates a price level.
var liquidityFraction = money.MustParse("0.20")

// DepthAtOrBetter sums the USD notional available at or better than the
// entry price for the chosen side. Buying YES consumes asks priced at
// or below the entry; buying NO consumes YES bids whose complement is
// at or below the NO entry.
func DepthAtOrBetter(book market.OrderBook, side market.Side, entryPrice money.Money) money.Money {
	total := money.Zero
	switch side {
	case market.SideYes:
		for _, level := range book.Asks {
			if level.Price.LessOrEqual(entryPrice) {
				total = total.Add(level.Price.Mul(level.Size))
			}
		}
	case market.SideNo:
		yesCeiling := money.One.Sub(entryPrice)
		for _, level := range book.Bids {
			if level.Price.GreaterOrEqual(yesCeiling) {
				noPrice := money.One.Sub(level.Price)
				total = total.Add(noPrice.Mul(level.Size))
			}
		}
	}
	return total
}
