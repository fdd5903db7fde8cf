package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"polyagent/internal/money"
)

// CLOBClient is the read-only HTTP client for the exchange: market
// discovery through the Gamma API, books and mids through the CLOB API.
// Order placement requires on-chain signing and is not implemented.
type CLOBClient struct {
	gammaBaseURL string
	clobBaseURL  string
	httpc        *http.Client
}

func NewCLOBClient(gammaBaseURL, clobBaseURL string) *CLOBClient {
	return &CLOBClient{
		gammaBaseURL: strings.TrimRight(gammaBaseURL, "/"),
		clobBaseURL:  strings.TrimRight(clobBaseURL, "/"),
		httpc:        &http.Client{Timeout: 15 * time.Second},
	}
}

type gammaMarket struct {
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Outcomes      string      `json:"outcomes"`      // JSON-encoded array
	OutcomePrices string      `json:"outcomePrices"` // JSON-encoded array
	CLOBTokenIDs  string      `json:"clobTokenIds"`  // JSON-encoded array
	EndDate       string      `json:"endDate"`
	Volume24h     json.Number `json:"volume24hr"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}

func (c *CLOBClient) ListMarkets(ctx context.Context, f Filters) ([]Market, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	limit := f.MaxMarkets
	if limit <= 0 {
		limit = 100
	}
	q.Set("limit", fmt.Sprintf("%d", limit))

	var raw []gammaMarket
	if err := c.getJSON(ctx, c.gammaBaseURL+"/markets?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("gamma markets: %w", err)
	}

	markets := make([]Market, 0, len(raw))
	for _, gm := range raw {
		m, err := convertGammaMarket(gm)
		if err != nil {
			continue
		}
		if m.Volume24h.LessThan(f.MinVolume24h) {
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

func convertGammaMarket(gm gammaMarket) (Market, error) {
	if gm.ConditionID == "" || gm.Question == "" {
		return Market{}, fmt.Errorf("incomplete gamma market")
	}
	var outcomes, prices, tokenIDs []string
	_ = json.Unmarshal([]byte(gm.Outcomes), &outcomes)
	_ = json.Unmarshal([]byte(gm.OutcomePrices), &prices)
	_ = json.Unmarshal([]byte(gm.CLOBTokenIDs), &tokenIDs)
	if len(outcomes) != 2 || len(tokenIDs) != 2 {
		return Market{}, fmt.Errorf("not a binary market")
	}
	endDate, err := time.Parse(time.RFC3339, gm.EndDate)
	if err != nil {
		return Market{}, fmt.Errorf("bad end date %q: %w", gm.EndDate, err)
	}
	volume := money.Zero
	if gm.Volume24h.String() != "" {
		if volume, err = money.Parse(gm.Volume24h.String()); err != nil {
			return Market{}, err
		}
	}
	tokens := make([]TokenInfo, 0, 2)
	for i, outcome := range outcomes {
		price := money.Zero
		if i < len(prices) {
			if p, perr := money.Parse(prices[i]); perr == nil {
				price = p
			}
		}
		tokens = append(tokens, TokenInfo{TokenID: tokenIDs[i], Outcome: outcome, Price: price})
	}
	return Market{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Outcomes:    outcomes,
		Tokens:      tokens,
		EndDate:     endDate,
		Category:    InferCategory(gm.Question),
		Volume24h:   volume,
		Active:      gm.Active && !gm.Closed,
	}, nil
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponse struct {
	Bids []bookLevel `json:"bids"`
	Asks []bookLevel `json:"asks"`
}

// GetOrderBook fetches the YES token book for a market. The YES token
// is resolved through the market listing.
func (c *CLOBClient) GetOrderBook(ctx context.Context, conditionID string) (OrderBook, error) {
	m, err := c.getMarket(ctx, conditionID)
	if err != nil {
		return OrderBook{}, err
	}
	token, ok := YesToken(m)
	if !ok {
		return OrderBook{}, fmt.Errorf("no YES token for %s", conditionID)
	}

	var raw bookResponse
	u := c.clobBaseURL + "/book?token_id=" + url.QueryEscape(token.TokenID)
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return OrderBook{}, fmt.Errorf("clob book: %w", err)
	}
	return convertBook(token.TokenID, raw)
}

func convertBook(tokenID string, raw bookResponse) (OrderBook, error) {
	book := OrderBook{TokenID: tokenID, Timestamp: time.Now()}
	for _, l := range raw.Bids {
		level, err := convertLevel(l)
		if err != nil {
			return OrderBook{}, err
		}
		book.Bids = append(book.Bids, level)
	}
	for _, l := range raw.Asks {
		level, err := convertLevel(l)
		if err != nil {
			return OrderBook{}, err
		}
		book.Asks = append(book.Asks, level)
	}
	// Bids descending, asks ascending: the API does not guarantee order.
	sortLevels(book.Bids, true)
	sortLevels(book.Asks, false)

	switch {
	case len(book.Bids) > 0 && len(book.Asks) > 0:
		bestBid := book.Bids[0].Price
		bestAsk := book.Asks[0].Price
		book.Spread = bestAsk.Sub(bestBid)
		book.Midpoint = bestBid.Add(bestAsk).Div(money.FromInt(2))
	case len(book.Bids) > 0:
		book.Midpoint = book.Bids[0].Price
		book.Spread = money.One
	case len(book.Asks) > 0:
		book.Midpoint = book.Asks[0].Price
		book.Spread = money.One
	default:
		return OrderBook{}, fmt.Errorf("empty book for token %s", tokenID)
	}
	return book, nil
}

func convertLevel(l bookLevel) (PriceLevel, error) {
	price, err := money.Parse(l.Price)
	if err != nil {
		return PriceLevel{}, err
	}
	size, err := money.Parse(l.Size)
	if err != nil {
		return PriceLevel{}, err
	}
	return PriceLevel{Price: price, Size: size}, nil
}

func sortLevels(levels []PriceLevel, descending bool) {
	sort.SliceStable(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

// GetResolution reports the final outcome once a market is closed and
// resolved; nil while still trading.
func (c *CLOBClient) GetResolution(ctx context.Context, conditionID string) (*Resolution, error) {
	var raw []gammaMarket
	u := c.gammaBaseURL + "/markets?condition_id=" + url.QueryEscape(conditionID)
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("gamma resolution: %w", err)
	}
	if len(raw) == 0 || !raw[0].Closed {
		return nil, nil
	}
	var prices []string
	_ = json.Unmarshal([]byte(raw[0].OutcomePrices), &prices)
	if len(prices) == 0 {
		return nil, nil
	}
	yesPrice, err := money.Parse(prices[0])
	if err != nil {
		return nil, nil
	}
	outcome := 0
	if yesPrice.GreaterThan(money.MustParse("0.5")) {
		outcome = 1
	}
	return &Resolution{Outcome: outcome, ResolvedAt: time.Now()}, nil
}

// PlaceLimitOrder needs on-chain order signing, which is deliberately
// unimplemented.
func (c *CLOBClient) PlaceLimitOrder(context.Context, LimitOrder) (string, error) {
	return "", ErrNotImplemented
}

func (c *CLOBClient) getMarket(ctx context.Context, conditionID string) (Market, error) {
	var raw []gammaMarket
	u := c.gammaBaseURL + "/markets?condition_id=" + url.QueryEscape(conditionID)
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return Market{}, err
	}
	if len(raw) == 0 {
		return Market{}, fmt.Errorf("market %s not found", conditionID)
	}
	return convertGammaMarket(raw[0])
}

func (c *CLOBClient) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d from %s", resp.StatusCode, u)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
