package valuation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"polyagent/internal/budget"
	"polyagent/internal/data"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/money"
	"polyagent/internal/store"
)

const providerName = "anthropic"

// CostSink receives every oracle cost the moment it is incurred. In
// paper mode this is the paper wallet: oracle calls cost real money, so
// they burn from the simulated bankroll too.
type CostSink interface {
	DebitOracleCost(cost money.Money)
}

// BudgetGate is consulted before every oracle call. A granted Allow
// reserves the projection; Commit releases it once the real cost is
// persisted or the call abandoned.
type BudgetGate interface {
	Allow(projectedCost money.Money) bool
	Commit(projectedCost money.Money)
}

// ValuationStore is the slice of the repository the engine touches.
type ValuationStore interface {
	GetValuationCache(conditionID string, maxAge time.Duration) (*store.CachedValuation, error)
	PutValuationCache(v store.CachedValuation) error
	InsertAPICost(rec store.APICostRecord) error
}

// Outcome pairs one candidate with its valuation attempt. Err is a
// *OracleError for skippable failures, budget.ErrBudgetExhausted when
// the daily cap cut evaluation short, or a transport error.
type Outcome struct {
	Candidate market.Candidate
	Valuation *Valuation
	Cost      money.Money
	Cached    bool
	Err       error
}

// Engine runs the valuation pipeline: cache lookup, prompt build, the
// oracle HTTP call (bounded fan-out), cost accounting, parsing and
// cache write-back.
type Engine struct {
	oracle   OracleClient
	store    ValuationStore
	sink     CostSink
	gate     BudgetGate
	pricing  Pricing
	model    string
	cacheTTL time.Duration
	// bypassDelta forces a fresh call when the market moved more than
	// this since the cache write.
	bypassDelta money.Money
	fanOut      int

	mu          sync.Mutex
	cachePrices map[string]money.Money
}

func NewEngine(oracle OracleClient, st ValuationStore, sink CostSink, gate BudgetGate, pricing Pricing, model string, cacheTTL time.Duration, bypassDelta money.Money, fanOut int) *Engine {
	if fanOut <= 0 {
		fanOut = 4
	}
	return &Engine{
		oracle:      oracle,
		store:       st,
		sink:        sink,
		gate:        gate,
		pricing:     pricing,
		model:       model,
		cacheTTL:    cacheTTL,
		bypassDelta: bypassDelta,
		fanOut:      fanOut,
		cachePrices: make(map[string]money.Money),
	}
}

// EstimateCallCost exposes the pre-call projection for budget checks.
func (e *Engine) EstimateCallCost() money.Money {
	return e.pricing.EstimateCallCost()
}

// EvaluateAll values the candidates with bounded concurrency and
// returns outcomes in input order, so the serial sizing phase that
// follows mutates the bankroll deterministically. Once the budget gate
// refuses a call, the remaining uncached candidates are skipped.
func (e *Engine) EvaluateAll(ctx context.Context, candidates []market.Candidate, points []data.Point, cycle int64) []Outcome {
	outcomes := make([]Outcome, len(candidates))
	var exhausted atomic.Bool

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.fanOut)
	for i, c := range candidates {
		i, c := i, c
		eg.Go(func() error {
			if egCtx.Err() != nil {
				outcomes[i] = Outcome{Candidate: c, Err: egCtx.Err()}
				return nil
			}
			outcomes[i] = e.evaluateOne(egCtx, c, data.Relevant(points, c.Market.ConditionID), cycle, &exhausted)
			return nil
		})
	}
	_ = eg.Wait()
	return outcomes
}

func (e *Engine) evaluateOne(ctx context.Context, c market.Candidate, points []data.Point, cycle int64, exhausted *atomic.Bool) Outcome {
	condID := c.Market.ConditionID

	if cached := e.lookupCache(condID, c.Book.Midpoint); cached != nil {
		return Outcome{Candidate: c, Valuation: cached, Cached: true}
	}

	if exhausted.Load() {
		return Outcome{Candidate: c, Err: budget.ErrBudgetExhausted}
	}
	projected := e.pricing.EstimateCallCost()
	// e.mu makes Allow and the cost-row insert plus Commit mutually
	// exclusive, so no Allow sees a call both persisted and reserved.
	e.mu.Lock()
	allowed := e.gate.Allow(projected)
	e.mu.Unlock()
	if !allowed {
		exhausted.Store(true)
		return Outcome{Candidate: c, Err: budget.ErrBudgetExhausted}
	}

	resp, err := e.oracle.Complete(ctx, SystemPrompt(), BuildUserPrompt(c, points, time.Now()))
	if err != nil {
		// The call never reached the server or failed without usage
		// data; nothing to account for.
		e.gate.Commit(projected)
		return Outcome{Candidate: c, Err: err}
	}

	// Ordering guarantee: the cost is persisted and burned before the
	// valuation it paid for is consumed.
	cost := e.pricing.Cost(resp.InputTokens, resp.OutputTokens)
	e.mu.Lock()
	err = e.store.InsertAPICost(store.APICostRecord{
		Provider:     providerName,
		Endpoint:     "messages",
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cost:         cost,
		Cycle:        cycle,
	})
	e.gate.Commit(projected)
	e.mu.Unlock()
	if err != nil {
		return Outcome{Candidate: c, Err: err}
	}
	e.sink.DebitOracleCost(cost)
	logUsage(e.model, resp, cost)

	v, err := ParseValuation(resp.Text)
	if err != nil {
		// The server answered, so the cost stands even though the
		// response was unusable.
		return Outcome{Candidate: c, Cost: cost, Err: err}
	}

	e.writeCache(condID, v, c.Book.Midpoint)
	return Outcome{Candidate: c, Valuation: &v, Cost: cost}
}

// lookupCache returns a cached valuation unless it is stale or the
// market has drifted past the bypass delta since the cache write.
func (e *Engine) lookupCache(condID string, mid money.Money) *Valuation {
	cached, err := e.store.GetValuationCache(condID, e.cacheTTL)
	if err != nil {
		logger.Warnf("valuation: cache read for %s failed: %v", condID, err)
		return nil
	}
	if cached == nil {
		return nil
	}
	e.mu.Lock()
	ref, haveRef := e.cachePrices[condID]
	e.mu.Unlock()
	if haveRef && mid.Sub(ref).Abs().GreaterThan(e.bypassDelta) {
		logger.Debugf("valuation: cache bypass for %s, price moved %s -> %s", condID, ref, mid)
		return nil
	}
	return &Valuation{
		Probability:      cached.Probability,
		Confidence:       cached.Confidence,
		ReasoningSummary: cached.ReasoningSummary,
		KeyFactors:       cached.KeyFactors,
		DataQuality:      cached.DataQuality,
		TimeSensitivity:  cached.TimeSensitivity,
		SourceTime:       cached.CachedAt,
	}
}

func (e *Engine) writeCache(condID string, v Valuation, mid money.Money) {
	err := e.store.PutValuationCache(store.CachedValuation{
		ConditionID:      condID,
		Probability:      v.Probability,
		Confidence:       v.Confidence,
		ReasoningSummary: v.ReasoningSummary,
		KeyFactors:       v.KeyFactors,
		DataQuality:      v.DataQuality,
		TimeSensitivity:  v.TimeSensitivity,
		CachedAt:         v.SourceTime,
	})
	if err != nil {
		logger.Warnf("valuation: cache write for %s failed: %v", condID, err)
		return
	}
	e.mu.Lock()
	e.cachePrices[condID] = mid
	e.mu.Unlock()
}
