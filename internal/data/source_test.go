package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"polyagent/internal/market"
	"polyagent/internal/money"
)

type stubSource struct {
	name     string
	category market.Category
	points   []Point
	err      error
	got      []Query
}

func (s *stubSource) Name() string              { return s.name }
func (s *stubSource) Category() market.Category { return s.category }

func (s *stubSource) Fetch(_ context.Context, queries []Query) ([]Point, error) {
	s.got = queries
	return s.points, s.err
}

func point(source string, relevance ...string) Point {
	payload, _ := json.Marshal(map[string]string{"k": "v"})
	return Point{
		Source:      source,
		Category:    market.CategoryCrypto,
		Timestamp:   time.Now(),
		Payload:     payload,
		Confidence:  money.MustParse("0.9"),
		RelevanceTo: relevance,
	}
}

func TestAggregatorRoutesByCategory(t *testing.T) {
	crypto := &stubSource{name: "crypto", category: market.CategoryCrypto, points: []Point{point("crypto", "c1")}}
	sports := &stubSource{name: "sports", category: market.CategorySports}
	agg := NewAggregator(crypto, sports)

	queries := []Query{
		{ConditionID: "c1", Question: "btc?", Category: market.CategoryCrypto},
		{ConditionID: "w1", Question: "rain?", Category: market.CategoryWeather},
	}
	points := agg.FetchAll(context.Background(), queries)

	assert.Len(t, points, 1)
	assert.Len(t, crypto.got, 1)
	assert.Equal(t, "c1", crypto.got[0].ConditionID)
	// No sports queries: source never invoked.
	assert.Nil(t, sports.got)
}

func TestAggregatorSurvivesSourceFailure(t *testing.T) {
	broken := &stubSource{name: "broken", category: market.CategoryCrypto, err: errors.New("api down")}
	working := &stubSource{name: "working", category: market.CategoryCrypto, points: []Point{point("working", "c1")}}
	agg := NewAggregator(broken, working)

	points := agg.FetchAll(context.Background(), []Query{
		{ConditionID: "c1", Category: market.CategoryCrypto},
	})
	assert.Len(t, points, 1)
	assert.Equal(t, "working", points[0].Source)
}

func TestRelevant(t *testing.T) {
	points := []Point{point("a", "m1", "m2"), point("b", "m2"), point("c")}
	assert.Len(t, Relevant(points, "m1"), 1)
	assert.Len(t, Relevant(points, "m2"), 2)
	assert.Empty(t, Relevant(points, "m3"))
}

func TestNewsSearchTerm(t *testing.T) {
	term := searchTerm("Will the Fed cut rates by September?")
	assert.Equal(t, "fed cut rates september", term)
	assert.Empty(t, searchTerm(""))
}

func TestParseRSSTitles(t *testing.T) {
	body := `<rss><channel>
<item><title>First headline</title><link>x</link></item>
<item><title><![CDATA[Second headline]]></title></item>
<item><link>no title</link></item>
</channel></rss>`
	titles := parseRSSTitles(body)
	assert.Equal(t, []string{"First headline", "Second headline"}, titles)
}

func TestCryptoKeywordMatching(t *testing.T) {
	queries := []Query{
		{ConditionID: "c1", Question: "Will Bitcoin close above 100k?"},
		{ConditionID: "c2", Question: "Will Solana flip BNB?"},
		{ConditionID: "c3", Question: "Will it rain?"},
	}
	assert.Equal(t, []string{"c1"}, matchQueries(queries, []string{"bitcoin", "btc"}))
	assert.Equal(t, []string{"c2"}, matchQueries(queries, []string{"solana", "sol"}))
	assert.Empty(t, matchQueries(queries, []string{"doge"}))
}
