package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"polyagent/internal/market"
	"polyagent/internal/money"
)

const maxHeadlinesPerQuery = 5

// NewsSource fetches recent headlines from the Google News RSS feed,
// keyed by each market's question. The aggregator routes it only the
// politics-category markets.
type NewsSource struct {
	baseURL string
	httpc   *http.Client
}

func NewNewsSource() *NewsSource {
	return &NewsSource{
		baseURL: "https://news.google.com/rss/search",
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *NewsSource) Name() string              { return "news" }
func (s *NewsSource) Category() market.Category { return market.CategoryPolitics }

func (s *NewsSource) Fetch(ctx context.Context, queries []Query) ([]Point, error) {
	var points []Point
	now := time.Now()
	for _, q := range queries {
		term := searchTerm(q.Question)
		if term == "" {
			continue
		}
		feedURL := fmt.Sprintf("%s?q=%s&hl=en-US&gl=US&ceid=US:en", s.baseURL, url.QueryEscape(term))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return points, err
		}
		resp, err := s.httpc.Do(req)
		if err != nil {
			return points, err
		}
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if rerr != nil {
			return points, rerr
		}
		titles := parseRSSTitles(string(body))
		if len(titles) == 0 {
			continue
		}
		if len(titles) > maxHeadlinesPerQuery {
			titles = titles[:maxHeadlinesPerQuery]
		}
		payload, _ := json.Marshal(map[string]any{
			"search_term": term,
			"headlines":   titles,
		})
		points = append(points, Point{
			Source:    s.Name(),
			Category:  q.Category,
			Timestamp: now,
			Payload:   payload,
			// Headlines are noisy compared to structured feeds.
			Confidence:  money.MustParse("0.5"),
			RelevanceTo: []string{q.ConditionID},
		})
	}
	return points, nil
}

// searchTerm compresses a market question into a search query by
// dropping filler words.
func searchTerm(question string) string {
	fillers := map[string]bool{
		"will": true, "the": true, "be": true, "by": true, "a": true,
		"an": true, "in": true, "on": true, "of": true, "to": true,
	}
	var kept []string
	for _, w := range strings.Fields(strings.ToLower(strings.TrimRight(question, "?"))) {
		if !fillers[w] {
			kept = append(kept, w)
		}
		if len(kept) >= 6 {
			break
		}
	}
	return strings.Join(kept, " ")
}

// parseRSSTitles pulls item titles out of an RSS document without a
// full XML dependency; the feed structure is stable enough for this.
func parseRSSTitles(body string) []string {
	var titles []string
	rest := body
	for {
		start := strings.Index(rest, "<item>")
		if start == -1 {
			break
		}
		rest = rest[start:]
		end := strings.Index(rest, "</item>")
		if end == -1 {
			break
		}
		item := rest[:end]
		rest = rest[end+len("</item>"):]

		tStart := strings.Index(item, "<title>")
		tEnd := strings.Index(item, "</title>")
		if tStart == -1 || tEnd == -1 || tEnd <= tStart {
			continue
		}
		title := strings.TrimSpace(item[tStart+len("<title>") : tEnd])
		title = strings.TrimPrefix(title, "<![CDATA[")
		title = strings.TrimSuffix(title, "]]>")
		if title != "" {
			titles = append(titles, title)
		}
	}
	return titles
}
