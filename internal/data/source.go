// Package data aggregates external enrichment signals (weather, sports,
// crypto, news) that feed the valuation prompts. Sources are best
// effort: a failing source is logged and skipped, never fatal.
package data

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/money"
)

// Point is one standardized observation from any source. Payload stays
// opaque; the trading core never interprets it, it only forwards it to
// the oracle prompt.
type Point struct {
	Source      string
	Category    market.Category
	Timestamp   time.Time
	Payload     json.RawMessage
	Confidence  money.Money
	RelevanceTo []string
}

// Query tells a source which market it should look for data about.
type Query struct {
	ConditionID string
	Question    string
	Category    market.Category
}

// Source fetches enrichment data for markets in its category.
type Source interface {
	Name() string
	Category() market.Category
	Fetch(ctx context.Context, queries []Query) ([]Point, error)
}

// Aggregator fans queries out across all sources concurrently and
// merges the results.
type Aggregator struct {
	sources []Source
}

func NewAggregator(sources ...Source) *Aggregator {
	return &Aggregator{sources: sources}
}

// FetchAll routes each query to the sources covering its category and
// collects every point. Source failures degrade to missing data.
func (a *Aggregator) FetchAll(ctx context.Context, queries []Query) []Point {
	results := make([][]Point, len(a.sources))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		relevant := make([]Query, 0, len(queries))
		for _, q := range queries {
			if q.Category == src.Category() {
				relevant = append(relevant, q)
			}
		}
		if len(relevant) == 0 {
			continue
		}
		i, src := i, src
		eg.Go(func() error {
			points, err := src.Fetch(egCtx, relevant)
			if err != nil {
				logger.Warnf("data: source %s failed: %v", src.Name(), err)
				return nil
			}
			logger.Infof("data: source %s returned %d points", src.Name(), len(points))
			results[i] = points
			return nil
		})
	}
	_ = eg.Wait()

	var all []Point
	for _, points := range results {
		all = append(all, points...)
	}
	return all
}

// Relevant filters points down to those tagged for a given market.
func Relevant(points []Point, conditionID string) []Point {
	var out []Point
	for _, p := range points {
		for _, id := range p.RelevanceTo {
			if id == conditionID {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
