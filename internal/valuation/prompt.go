package valuation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"polyagent/internal/data"
	"polyagent/internal/market"
	"polyagent/internal/money"
)

const systemPrompt = `You are a prediction market analyst. Given market data and external signals,
estimate the true probability of the outcome. You must respond with ONLY
valid JSON. No explanations outside the JSON structure.

Your response MUST follow this exact schema:
{
  "probability": <float 0.0-1.0>,
  "confidence": <float 0.0-1.0>,
  "reasoning_summary": "<1-2 sentences>",
  "key_factors": ["<factor1>", "<factor2>"],
  "data_quality": "<high|medium|low>",
  "time_sensitivity": "<hours|days|weeks>"
}`

// SystemPrompt is deterministic so identical markets produce identical
// requests (and comparable cached responses).
func SystemPrompt() string { return systemPrompt }

const (
	maxPromptDataPoints = 10
	maxPayloadChars     = 200
)

// BuildUserPrompt templates a candidate plus its enrichment data into
// the oracle request.
func BuildUserPrompt(c market.Candidate, points []data.Point, now time.Time) string {
	m := c.Market
	book := c.Book

	implied := book.ImpliedProbability().Mul(money.FromInt(100))
	days := int(m.EndDate.Sub(now).Hours() / 24)

	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\n", m.Question)
	fmt.Fprintf(&b, "Current Price: %s (implied prob: %.1f%%)\n", book.Midpoint, implied.InexactFloat64())
	fmt.Fprintf(&b, "Resolution Date: %s (%d days away)\n", m.EndDate.Format("2006-01-02"), days)
	fmt.Fprintf(&b, "Category: %s\n\n", m.Category)

	b.WriteString("External Data:\n")
	b.WriteString(formatDataPoints(points))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Volume (24h): $%s\n", m.Volume24h)
	fmt.Fprintf(&b, "Price History (24h): %s\n", summarizeHistory(c.History, book.Midpoint))
	fmt.Fprintf(&b, "Order Book Depth: %s\n", summarizeDepth(book))
	fmt.Fprintf(&b, "Spread: %s\n\n", book.Spread)

	b.WriteString("Estimate the TRUE probability of YES outcome.")
	return b.String()
}

func formatDataPoints(points []data.Point) string {
	if len(points) == 0 {
		return "No external data available.\n"
	}
	var b strings.Builder
	for i, dp := range points {
		if i >= maxPromptDataPoints {
			break
		}
		fmt.Fprintf(&b, "%d. [%s] (confidence: %s) %s\n",
			i+1, dp.Source, dp.Confidence, truncatePayload(dp.Payload))
	}
	return b.String()
}

func truncatePayload(payload json.RawMessage) string {
	s := strings.TrimSpace(string(payload))
	if len(s) > maxPayloadChars {
		return s[:maxPayloadChars] + "..."
	}
	return s
}

func summarizeDepth(book market.OrderBook) string {
	bidDepth := money.Zero
	for _, l := range book.Bids {
		bidDepth = bidDepth.Add(l.Size)
	}
	askDepth := money.Zero
	for _, l := range book.Asks {
		askDepth = askDepth.Add(l.Size)
	}
	return fmt.Sprintf("bids: $%s, asks: $%s", bidDepth, askDepth)
}

func summarizeHistory(history []market.PricePoint, current money.Money) string {
	if len(history) == 0 {
		return "unavailable"
	}
	low, high := history[0].Price, history[0].Price
	for _, p := range history[1:] {
		low = money.Min(low, p.Price)
		high = money.Max(high, p.Price)
	}
	open := history[0].Price
	change := current.Sub(open)
	return fmt.Sprintf("open %s, low %s, high %s, change %s", open, low, high, change)
}
