package valuation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"polyagent/internal/logger"
	"polyagent/internal/money"
)

const (
	anthropicVersion = "2023-06-01"
	messagesPath     = "/v1/messages"
)

// OracleResponse is the raw text plus token usage of one completed call.
type OracleResponse struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// OracleClient abstracts the probabilistic oracle HTTP endpoint.
type OracleClient interface {
	Complete(ctx context.Context, system, user string) (OracleResponse, error)
}

// AnthropicClient talks to the Anthropic messages endpoint. Transient
// failures (429, 5xx, network) are retried with exponential backoff;
// 4xx responses surface as OracleError without retry.
type AnthropicClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	httpc      *http.Client
}

func NewAnthropicClient(baseURL, apiKey, model string, maxTokens, maxRetries int) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AnthropicClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Model:      model,
		MaxTokens:  maxTokens,
		MaxRetries: maxRetries,
		httpc:      &http.Client{Timeout: 60 * time.Second},
	}
}

type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system,omitempty"`
	Messages  []messagePayload `json:"messages"`
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Complete(ctx context.Context, system, user string) (OracleResponse, error) {
	body, _ := json.Marshal(messagesRequest{
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		System:    system,
		Messages:  []messagePayload{{Role: "user", Content: user}},
	})
	url := c.BaseURL + messagesPath

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return OracleResponse{}, err
		}
		req.Header.Set("content-type", "application/json")
		req.Header.Set("x-api-key", c.APIKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return OracleResponse{}, ctx.Err()
			}
			lastErr = err
			if attempt < c.MaxRetries {
				if !sleepCtx(ctx, backoffDelay(attempt, "")) {
					return OracleResponse{}, ctx.Err()
				}
				continue
			}
			break
		}

		if resp.StatusCode/100 == 2 {
			var parsed messagesResponse
			derr := json.NewDecoder(resp.Body).Decode(&parsed)
			resp.Body.Close()
			if derr != nil {
				return OracleResponse{}, &OracleError{Reason: "decoding response body", Err: derr}
			}
			var text strings.Builder
			for _, block := range parsed.Content {
				if block.Type == "" || block.Type == "text" {
					text.WriteString(block.Text)
				}
			}
			return OracleResponse{
				Text:         text.String(),
				InputTokens:  parsed.Usage.InputTokens,
				OutputTokens: parsed.Usage.OutputTokens,
			}, nil
		}

		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		retryAfter := resp.Header.Get("Retry-After")
		status := resp.StatusCode
		resp.Body.Close()

		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = fmt.Errorf("oracle http %d: %s", status, strings.TrimSpace(string(errBody)))
			if attempt < c.MaxRetries {
				if !sleepCtx(ctx, backoffDelay(attempt, retryAfter)) {
					return OracleResponse{}, ctx.Err()
				}
				continue
			}
			break
		}
		// Other 4xx: the request itself is bad, retrying cannot help.
		return OracleResponse{}, &OracleError{
			Reason: fmt.Sprintf("http %d", status),
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(errBody))),
		}
	}
	return OracleResponse{}, fmt.Errorf("oracle call failed after %d attempts: %w", c.MaxRetries+1, lastErr)
}

func backoffDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	delay := 800 * time.Millisecond << attempt
	if delay > 8*time.Second {
		delay = 8 * time.Second
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Pricing converts token usage into dollar cost. Prices are per million
// tokens, taken from config.
type Pricing struct {
	PriceIn  money.Money
	PriceOut money.Money
}

var million = money.FromInt(1_000_000)

func (p Pricing) Cost(inputTokens, outputTokens int64) money.Money {
	in := money.FromInt(inputTokens).Mul(p.PriceIn).Div(million)
	out := money.FromInt(outputTokens).Mul(p.PriceOut).Div(million)
	return in.Add(out)
}

// EstimateCallCost projects a typical valuation call (~2000 input,
// ~300 output tokens) for pre-call budget checks.
func (p Pricing) EstimateCallCost() money.Money {
	return p.Cost(2000, 300)
}

func logUsage(model string, resp OracleResponse, cost money.Money) {
	logger.Infof("oracle: call complete model=%s input_tokens=%d output_tokens=%d cost=%s",
		model, resp.InputTokens, resp.OutputTokens, cost)
}
