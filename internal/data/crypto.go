package data

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"polyagent/internal/market"
	"polyagent/internal/money"
)

// Symbols tracked for crypto prediction markets, with the question
// keywords that link a ticker to a market.
var trackedSymbols = []struct {
	symbol   string
	keywords []string
}{
	{"BTCUSDT", []string{"bitcoin", "btc"}},
	{"ETHUSDT", []string{"ethereum", "eth"}},
	{"SOLUSDT", []string{"solana", "sol"}},
	{"DOGEUSDT", []string{"dogecoin", "doge"}},
	{"XRPUSDT", []string{"ripple", "xrp"}},
}

// CryptoSource reads 24h ticker statistics from Binance's public
// endpoint; no API key is required for market data.
type CryptoSource struct {
	client *binance.Client
}

func NewCryptoSource() *CryptoSource {
	return &CryptoSource{client: binance.NewClient("", "")}
}

func (s *CryptoSource) Name() string              { return "binance" }
func (s *CryptoSource) Category() market.Category { return market.CategoryCrypto }

func (s *CryptoSource) Fetch(ctx context.Context, queries []Query) ([]Point, error) {
	var points []Point
	now := time.Now()
	for _, tracked := range trackedSymbols {
		relevance := matchQueries(queries, tracked.keywords)
		if len(relevance) == 0 {
			continue
		}
		stats, err := s.client.NewListPriceChangeStatsService().
			Symbol(tracked.symbol).Do(ctx)
		if err != nil {
			return points, err
		}
		if len(stats) == 0 {
			continue
		}
		t := stats[0]
		payload, _ := json.Marshal(map[string]any{
			"symbol":             t.Symbol,
			"last_price":         t.LastPrice,
			"price_change":       t.PriceChange,
			"price_change_pct":   t.PriceChangePercent,
			"high_24h":           t.HighPrice,
			"low_24h":            t.LowPrice,
			"volume_24h":         t.Volume,
			"quote_volume_24h":   t.QuoteVolume,
			"weighted_avg_price": t.WeightedAvgPrice,
		})
		points = append(points, Point{
			Source:      s.Name(),
			Category:    market.CategoryCrypto,
			Timestamp:   now,
			Payload:     payload,
			Confidence:  money.MustParse("0.9"),
			RelevanceTo: relevance,
		})
	}
	return points, nil
}

func matchQueries(queries []Query, keywords []string) []string {
	var ids []string
	for _, q := range queries {
		question := strings.ToLower(q.Question)
		for _, kw := range keywords {
			if strings.Contains(question, kw) {
				ids = append(ids, q.ConditionID)
				break
			}
		}
	}
	return ids
}
