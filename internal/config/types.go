package config

import (
	"os"

	"polyagent/internal/money"
)

// Config is the full configuration tree. Every monetary or fractional
// value is a decimal string; floats never carry money. Validation
// guarantees the strings parse, so the typed accessors below cannot
// fail after Load returns.
type Config struct {
	Agent      AgentConfig      `toml:"agent"`
	Scanning   ScanningConfig   `toml:"scanning"`
	Valuation  ValuationConfig  `toml:"valuation"`
	Risk       RiskConfig       `toml:"risk"`
	Execution  ExecutionConfig  `toml:"execution"`
	Monitoring MonitoringConfig `toml:"monitoring"`
	Database   DatabaseConfig   `toml:"database"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Exchange   ExchangeConfig   `toml:"exchange"`
}

// Agent modes.
const (
	ModePaper    = "paper"
	ModeLive     = "live"
	ModeBacktest = "backtest"
)

type AgentConfig struct {
	Mode                  string `toml:"mode"`
	CycleIntervalSeconds  int    `toml:"cycle_interval_seconds"`
	InitialPaperBalance   string `toml:"initial_paper_balance"`
	LowFuelThreshold      string `toml:"low_fuel_threshold"`
	DeathBalanceThreshold string `toml:"death_balance_threshold"`
	APIReserve            string `toml:"api_reserve"`
	DailyAPIBudget        string `toml:"daily_api_budget"`
}

type ScanningConfig struct {
	MaxMarkets        int      `toml:"max_markets"`
	MinVolume24h      string   `toml:"min_volume_24h"`
	MaxResolutionDays int      `toml:"max_resolution_days"`
	MaxSpreadPct      string   `toml:"max_spread_pct"`
	Categories        []string `toml:"categories"`
}

type ValuationConfig struct {
	ModelName            string `toml:"model_name"`
	BaseURL              string `toml:"base_url"`
	MaxTokens            int    `toml:"max_tokens"`
	MinEdgeThreshold     string `toml:"min_edge_threshold"`
	HighConfidenceEdge   string `toml:"high_confidence_edge"`
	LowConfidenceEdge    string `toml:"low_confidence_edge"`
	CacheTTLSeconds      int    `toml:"cache_ttl_seconds"`
	CacheBypassPriceMove string `toml:"cache_bypass_price_move"`
	PriceIn              string `toml:"price_in"`
	PriceOut             string `toml:"price_out"`
	MaxConcurrentCalls   int    `toml:"max_concurrent_calls"`
}

type RiskConfig struct {
	KellyFraction           string `toml:"kelly_fraction"`
	MaxPositionPct          string `toml:"max_position_pct"`
	MaxTotalExposurePct     string `toml:"max_total_exposure_pct"`
	MaxPositionsPerCategory int    `toml:"max_positions_per_category"`
	MinPositionUSD          string `toml:"min_position_usd"`
	ProfitCostRatio         string `toml:"profit_cost_ratio"`
	StopLossPct             string `toml:"stop_loss_pct"`
}

type ExecutionConfig struct {
	OrderType       string `toml:"order_type"`
	OrderTTLSeconds int    `toml:"order_ttl_seconds"`
	MaxSlippagePct  string `toml:"max_slippage_pct"`
	MaxRetries      int    `toml:"max_retries"`
}

type MonitoringConfig struct {
	LogLevel string `toml:"log_level"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

type ExchangeConfig struct {
	GammaBaseURL string `toml:"gamma_base_url"`
	CLOBBaseURL  string `toml:"clob_base_url"`
}

// Secrets are read exclusively from the environment, never from files.
type Secrets struct {
	AnthropicAPIKey  string
	WalletPrivateKey string
	AlertWebhookURL  string
	LogLevel         string
}

func SecretsFromEnv() Secrets {
	return Secrets{
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		LogLevel:         os.Getenv("POLYAGENT_LOG_LEVEL"),
	}
}

// ---- typed accessors (safe after validation) ----

func (a AgentConfig) InitialPaperBalanceMoney() money.Money {
	return money.MustParse(a.InitialPaperBalance)
}
func (a AgentConfig) LowFuelThresholdMoney() money.Money { return money.MustParse(a.LowFuelThreshold) }
func (a AgentConfig) DeathThresholdMoney() money.Money {
	return money.MustParse(a.DeathBalanceThreshold)
}
func (a AgentConfig) APIReserveMoney() money.Money     { return money.MustParse(a.APIReserve) }
func (a AgentConfig) DailyAPIBudgetMoney() money.Money { return money.MustParse(a.DailyAPIBudget) }

func (s ScanningConfig) MinVolume24hMoney() money.Money { return money.MustParse(s.MinVolume24h) }
func (s ScanningConfig) MaxSpreadPctMoney() money.Money { return money.MustParse(s.MaxSpreadPct) }

func (v ValuationConfig) MinEdgeThresholdMoney() money.Money {
	return money.MustParse(v.MinEdgeThreshold)
}
func (v ValuationConfig) HighConfidenceEdgeMoney() money.Money {
	return money.MustParse(v.HighConfidenceEdge)
}
func (v ValuationConfig) LowConfidenceEdgeMoney() money.Money {
	return money.MustParse(v.LowConfidenceEdge)
}
func (v ValuationConfig) CacheBypassPriceMoveMoney() money.Money {
	return money.MustParse(v.CacheBypassPriceMove)
}
func (v ValuationConfig) PriceInMoney() money.Money  { return money.MustParse(v.PriceIn) }
func (v ValuationConfig) PriceOutMoney() money.Money { return money.MustParse(v.PriceOut) }

func (r RiskConfig) KellyFractionMoney() money.Money  { return money.MustParse(r.KellyFraction) }
func (r RiskConfig) MaxPositionPctMoney() money.Money { return money.MustParse(r.MaxPositionPct) }
func (r RiskConfig) MaxTotalExposurePctMoney() money.Money {
	return money.MustParse(r.MaxTotalExposurePct)
}
func (r RiskConfig) MinPositionUSDMoney() money.Money  { return money.MustParse(r.MinPositionUSD) }
func (r RiskConfig) ProfitCostRatioMoney() money.Money { return money.MustParse(r.ProfitCostRatio) }
func (r RiskConfig) StopLossPctMoney() money.Money     { return money.MustParse(r.StopLossPct) }

func (e ExecutionConfig) MaxSlippagePctMoney() money.Money { return money.MustParse(e.MaxSlippagePct) }
