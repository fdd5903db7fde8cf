package risk

import (
	"fmt"

	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/money"
	"polyagent/internal/store"
)

// Position is one open holding tracked in memory. Tokens is the number
// of outcome tokens held; SizeUSD is Tokens × EntryPrice, the capital
// locked in the position.
type Position struct {
	TradeID    int64
	MarketID   string
	Question   string
	Category   market.Category
	Side       market.Side
	EntryPrice money.Money
	Tokens     money.Money
	SizeUSD    money.Money
}

// Tracker is the in-memory view of open positions, derived from the
// trades table and mutated only by the cycle loop.
type Tracker struct {
	positions map[string]Position // keyed by marketID|side
}

func NewTracker() *Tracker {
	return &Tracker{positions: make(map[string]Position)}
}

func positionKey(marketID string, side market.Side) string {
	return marketID + "|" + string(side)
}

// Restore rebuilds the tracker from OPEN/FILLED trades on startup.
func (t *Tracker) Restore(s *store.Store) error {
	open, err := s.ListOpenTrades()
	if err != nil {
		return fmt.Errorf("portfolio: restore: %w", err)
	}
	t.positions = make(map[string]Position, len(open))
	for _, trade := range open {
		pos := Position{
			TradeID:    trade.ID,
			MarketID:   trade.MarketID,
			Question:   trade.MarketQuestion,
			Category:   market.InferCategory(trade.MarketQuestion),
			Side:       market.Side(trade.Direction),
			EntryPrice: trade.EntryPrice,
			Tokens:     trade.Size,
			SizeUSD:    trade.EntryPrice.Mul(trade.Size),
		}
		key := positionKey(pos.MarketID, pos.Side)
		if _, dup := t.positions[key]; dup {
			return fmt.Errorf("portfolio: duplicate open trade for %s %s", pos.MarketID, pos.Side)
		}
		t.positions[key] = pos
	}
	if len(open) > 0 {
		logger.Infof("portfolio: restored %d open positions, exposure=%s", len(open), t.TotalExposure())
	}
	return nil
}

// Has reports whether a position for (market, side) is already held.
func (t *Tracker) Has(marketID string, side market.Side) bool {
	_, ok := t.positions[positionKey(marketID, side)]
	return ok
}

// Add registers a new position and returns its release hook. Every code
// path that increments exposure must eventually invoke the release —
// settlement and stop-loss both do.
func (t *Tracker) Add(pos Position) (release func(), err error) {
	key := positionKey(pos.MarketID, pos.Side)
	if _, dup := t.positions[key]; dup {
		return nil, fmt.Errorf("portfolio: position already open for %s %s", pos.MarketID, pos.Side)
	}
	t.positions[key] = pos
	return func() { delete(t.positions, key) }, nil
}

// Release drops the position for (market, side) if held.
func (t *Tracker) Release(marketID string, side market.Side) {
	delete(t.positions, positionKey(marketID, side))
}

// Get returns the position for (market, side).
func (t *Tracker) Get(marketID string, side market.Side) (Position, bool) {
	pos, ok := t.positions[positionKey(marketID, side)]
	return pos, ok
}

// Positions returns a copy of all open positions.
func (t *Tracker) Positions() []Position {
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	return out
}

func (t *Tracker) Count() int { return len(t.positions) }

// TotalExposure is the capital locked across open positions.
func (t *Tracker) TotalExposure() money.Money {
	total := money.Zero
	for _, p := range t.positions {
		total = total.Add(p.SizeUSD)
	}
	return total
}

// CategoryCount is the number of open positions in a category.
func (t *Tracker) CategoryCount(cat market.Category) int {
	n := 0
	for _, p := range t.positions {
		if p.Category == cat {
			n++
		}
	}
	return n
}

// UnrealizedPnL marks every open position to the given mid prices.
// Positions without a quote contribute zero. For a YES position the
// mark is (mid − entry) × tokens; NO positions flip the sign.
func (t *Tracker) UnrealizedPnL(mids map[string]money.Money) money.Money {
	total := money.Zero
	for _, p := range t.positions {
		mid, ok := mids[p.MarketID]
		if !ok {
			continue
		}
		move := mid.Sub(yesEntry(p))
		total = total.Add(move.Mul(p.Tokens).Mul(p.Side.Sign()))
	}
	return total
}

// yesEntry converts the position's entry price back into YES terms: a
// NO token bought at 0.40 corresponds to a YES price of 0.60.
func yesEntry(p Position) money.Money {
	if p.Side == market.SideNo {
		return money.One.Sub(p.EntryPrice)
	}
	return p.EntryPrice
}
