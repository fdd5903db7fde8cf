package market

import (
	"context"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"polyagent/internal/logger"
	"polyagent/internal/money"
)

// ScanConfig mirrors the [scanning] config table.
type ScanConfig struct {
	MaxMarkets        int
	MinVolume24h      money.Money
	MaxResolutionDays int
	MaxSpreadPct      money.Money
	Categories        []Category
}

// LowFuelCandidateLimit truncates the scan when the agent is conserving:
// only the highest-volume markets are worth an oracle call.
const LowFuelCandidateLimit = 50

// Scanner discovers candidate markets worth valuing.
type Scanner struct {
	client  ExchangeClient
	cfg     ScanConfig
	limiter *rate.Limiter
	allowed map[Category]bool
}

func NewScanner(client ExchangeClient, cfg ScanConfig, requestsPerSecond float64, burst int) *Scanner {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if burst <= 0 {
		burst = 1
	}
	allowed := make(map[Category]bool, len(cfg.Categories))
	for _, c := range cfg.Categories {
		allowed[c] = true
	}
	return &Scanner{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		allowed: allowed,
	}
}

// Scan lists markets, applies the volume/spread/resolution/category
// filters, and attaches an order-book snapshot to each survivor. The
// order-book fetches are paced by the client rate limiter.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	filters := Filters{
		MinVolume24h:      s.cfg.MinVolume24h,
		MaxResolutionDays: s.cfg.MaxResolutionDays,
		MaxMarkets:        s.cfg.MaxMarkets,
		MaxSpreadPct:      s.cfg.MaxSpreadPct,
	}
	markets, err := s.client.ListMarkets(ctx, filters)
	if err != nil {
		return nil, err
	}
	logger.Infof("scan: %d markets discovered", len(markets))

	cutoff := time.Now().UTC().Add(time.Duration(s.cfg.MaxResolutionDays) * 24 * time.Hour)
	var candidates []Candidate
	for _, m := range markets {
		if !s.passesMarketFilters(m, cutoff) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return candidates, err
		}
		book, err := s.client.GetOrderBook(ctx, m.ConditionID)
		if err != nil {
			logger.Warnf("scan: order book for %s failed: %v", m.ConditionID, err)
			continue
		}
		if book.Spread.GreaterThan(s.cfg.MaxSpreadPct) {
			continue
		}
		candidates = append(candidates, Candidate{Market: m, Book: book})
	}
	logger.Infof("scan: %d candidates after filtering", len(candidates))
	return candidates, nil
}

func (s *Scanner) passesMarketFilters(m Market, cutoff time.Time) bool {
	if !m.Active {
		return false
	}
	if m.Volume24h.LessThan(s.cfg.MinVolume24h) {
		return false
	}
	if m.EndDate.After(cutoff) {
		return false
	}
	if len(s.allowed) > 0 && !s.allowed[m.Category] {
		return false
	}
	return true
}

// TopByVolume keeps the n highest-volume candidates, used in LowFuel.
func TopByVolume(candidates []Candidate, n int) []Candidate {
	if len(candidates) <= n {
		return candidates
	}
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Market.Volume24h.GreaterThan(sorted[j].Market.Volume24h)
	})
	return sorted[:n]
}

func yesToken(m Market) (TokenInfo, bool) {
	for _, t := range m.Tokens {
		if Side(t.Outcome) == SideYes || t.Outcome == "Yes" || t.Outcome == "yes" {
			return t, true
		}
	}
	if len(m.Tokens) > 0 {
		return m.Tokens[0], true
	}
	return TokenInfo{}, false
}

// NoToken returns the NO outcome token of a market, falling back to the
// last token (the exchange does not guarantee array ordering).
func NoToken(m Market) (TokenInfo, bool) {
	for _, t := range m.Tokens {
		if Side(t.Outcome) == SideNo || t.Outcome == "No" || t.Outcome == "no" {
			return t, true
		}
	}
	if len(m.Tokens) > 0 {
		return m.Tokens[len(m.Tokens)-1], true
	}
	return TokenInfo{}, false
}

// YesToken exposes the YES token lookup to the execution layer.
func YesToken(m Market) (TokenInfo, bool) { return yesToken(m) }
