package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"polyagent/internal/market"
	"polyagent/internal/money"
)

var sportEndpoints = []struct {
	keyword string
	path    string
}{
	{"nfl", "football/nfl"},
	{"nba", "basketball/nba"},
	{"mlb", "baseball/mlb"},
	{"nhl", "hockey/nhl"},
	{"ufc", "mma/ufc"},
	{"soccer", "soccer/usa.1"},
}

// SportsSource reads scoreboards from ESPN's public site API.
type SportsSource struct {
	baseURL string
	httpc   *http.Client
}

func NewSportsSource() *SportsSource {
	return &SportsSource{
		baseURL: "https://site.api.espn.com/apis/site/v2/sports",
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SportsSource) Name() string              { return "espn" }
func (s *SportsSource) Category() market.Category { return market.CategorySports }

type scoreboardResponse struct {
	Events []struct {
		Name      string `json:"name"`
		ShortName string `json:"shortName"`
		Date      string `json:"date"`
		Status    struct {
			Type struct {
				Description string `json:"description"`
			} `json:"type"`
		} `json:"status"`
	} `json:"events"`
}

func (s *SportsSource) Fetch(ctx context.Context, queries []Query) ([]Point, error) {
	var points []Point
	now := time.Now()
	for _, sport := range sportEndpoints {
		relevance := matchQueries(queries, []string{sport.keyword})
		if len(relevance) == 0 {
			continue
		}
		url := fmt.Sprintf("%s/%s/scoreboard", s.baseURL, sport.path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return points, err
		}
		resp, err := s.httpc.Do(req)
		if err != nil {
			return points, err
		}
		var board scoreboardResponse
		derr := json.NewDecoder(resp.Body).Decode(&board)
		resp.Body.Close()
		if derr != nil {
			return points, fmt.Errorf("decode %s scoreboard: %w", sport.keyword, derr)
		}
		events := make([]map[string]string, 0, len(board.Events))
		for _, e := range board.Events {
			events = append(events, map[string]string{
				"name":   e.Name,
				"short":  e.ShortName,
				"date":   e.Date,
				"status": e.Status.Type.Description,
			})
			if len(events) >= 10 {
				break
			}
		}
		if len(events) == 0 {
			continue
		}
		payload, _ := json.Marshal(map[string]any{
			"sport":  sport.keyword,
			"events": events,
		})
		points = append(points, Point{
			Source:      s.Name(),
			Category:    market.CategorySports,
			Timestamp:   now,
			Payload:     payload,
			Confidence:  money.MustParse("0.8"),
			RelevanceTo: relevance,
		})
	}
	return points, nil
}
