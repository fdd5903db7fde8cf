package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"polyagent/internal/market"
	"polyagent/internal/money"
)

// Major US cities covered by weather markets.
var weatherStations = []struct {
	city     string
	lat, lon float64
}{
	{"New York", 40.7128, -74.0060},
	{"Los Angeles", 33.9425, -118.2551},
	{"Chicago", 41.8781, -87.6298},
	{"Miami", 25.7617, -80.1918},
	{"Houston", 29.7604, -95.3698},
}

// WeatherSource fetches short-range forecasts from api.weather.gov.
type WeatherSource struct {
	baseURL string
	httpc   *http.Client
}

func NewWeatherSource() *WeatherSource {
	return &WeatherSource{
		baseURL: "https://api.weather.gov",
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WeatherSource) Name() string              { return "noaa" }
func (s *WeatherSource) Category() market.Category { return market.CategoryWeather }

type pointsResponse struct {
	Properties struct {
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			Name                       string `json:"name"`
			Temperature                int    `json:"temperature"`
			TemperatureUnit            string `json:"temperatureUnit"`
			ShortForecast              string `json:"shortForecast"`
			ProbabilityOfPrecipitation struct {
				Value *int `json:"value"`
			} `json:"probabilityOfPrecipitation"`
		} `json:"periods"`
	} `json:"properties"`
}

func (s *WeatherSource) Fetch(ctx context.Context, queries []Query) ([]Point, error) {
	var points []Point
	now := time.Now()
	for _, station := range weatherStations {
		relevance := matchQueries(queries, []string{strings.ToLower(station.city)})
		if len(relevance) == 0 {
			continue
		}
		forecast, err := s.fetchForecast(ctx, station.lat, station.lon)
		if err != nil {
			return points, fmt.Errorf("forecast for %s: %w", station.city, err)
		}
		if len(forecast.Properties.Periods) == 0 {
			continue
		}
		period := forecast.Properties.Periods[0]
		precip := 0
		if period.ProbabilityOfPrecipitation.Value != nil {
			precip = *period.ProbabilityOfPrecipitation.Value
		}
		payload, _ := json.Marshal(map[string]any{
			"city":           station.city,
			"period":         period.Name,
			"temperature":    period.Temperature,
			"unit":           period.TemperatureUnit,
			"short_forecast": period.ShortForecast,
			"precip_pct":     precip,
		})
		points = append(points, Point{
			Source:      s.Name(),
			Category:    market.CategoryWeather,
			Timestamp:   now,
			Payload:     payload,
			Confidence:  money.MustParse("0.85"),
			RelevanceTo: relevance,
		})
	}
	return points, nil
}

func (s *WeatherSource) fetchForecast(ctx context.Context, lat, lon float64) (*forecastResponse, error) {
	var pts pointsResponse
	url := fmt.Sprintf("%s/points/%.4f,%.4f", s.baseURL, lat, lon)
	if err := s.getJSON(ctx, url, &pts); err != nil {
		return nil, err
	}
	if pts.Properties.Forecast == "" {
		return nil, fmt.Errorf("no forecast URL in points response")
	}
	var forecast forecastResponse
	if err := s.getJSON(ctx, pts.Properties.Forecast, &forecast); err != nil {
		return nil, err
	}
	return &forecast, nil
}

func (s *WeatherSource) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	// api.weather.gov requires an identifying user agent.
	req.Header.Set("User-Agent", "polyagent/0.1")
	resp, err := s.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
