package model

import "gorm.io/datatypes"

// All monetary columns are decimal text; precision survives the round
// trip through SQLite untouched.

type TradeModel struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	Cycle          int64   `gorm:"column:cycle"`
	MarketID       string  `gorm:"column:market_id;index"`
	MarketQuestion string  `gorm:"column:market_question"`
	Direction      string  `gorm:"column:direction"`
	EntryPrice     string  `gorm:"column:entry_price"`
	Size           string  `gorm:"column:size"`
	EdgeAtEntry    string  `gorm:"column:edge_at_entry"`
	ClaudeFair     string  `gorm:"column:claude_fair_value"`
	Confidence     string  `gorm:"column:confidence"`
	KellyRaw       string  `gorm:"column:kelly_raw"`
	KellyAdjusted  string  `gorm:"column:kelly_adjusted"`
	Status         string  `gorm:"column:status;index"`
	PnL            *string `gorm:"column:pnl"`
	CreatedAtUnix  int64   `gorm:"column:created_at"`
	ResolvedAtUnix *int64  `gorm:"column:resolved_at"`
}

func (TradeModel) TableName() string { return "trades" }

type CycleModel struct {
	ID                 int64  `gorm:"column:id;primaryKey"`
	CycleNumber        int64  `gorm:"column:cycle_number;uniqueIndex"`
	MarketsScanned     int64  `gorm:"column:markets_scanned"`
	OpportunitiesFound int64  `gorm:"column:opportunities_found"`
	TradesPlaced       int64  `gorm:"column:trades_placed"`
	APICost            string `gorm:"column:api_cost"`
	Bankroll           string `gorm:"column:bankroll"`
	UnrealizedPnL      string `gorm:"column:unrealized_pnl"`
	AgentState         string `gorm:"column:agent_state"`
	DurationMs         int64  `gorm:"column:duration_ms"`
	CreatedAtUnix      int64  `gorm:"column:created_at"`
}

func (CycleModel) TableName() string { return "cycles" }

type APICostModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Provider      string `gorm:"column:provider"`
	Endpoint      string `gorm:"column:endpoint"`
	InputTokens   int64  `gorm:"column:input_tokens"`
	OutputTokens  int64  `gorm:"column:output_tokens"`
	Cost          string `gorm:"column:cost"`
	Cycle         int64  `gorm:"column:cycle;index"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
}

func (APICostModel) TableName() string { return "api_costs" }

type CalibrationModel struct {
	ID               int64   `gorm:"column:id;primaryKey"`
	MarketID         string  `gorm:"column:market_id"`
	ClaudeConfidence string  `gorm:"column:claude_confidence"`
	FairValue        string  `gorm:"column:fair_value"`
	MarketPriceEntry string  `gorm:"column:market_price_at_entry"`
	ActualOutcome    *string `gorm:"column:actual_outcome"`
	ForecastCorrect  *bool   `gorm:"column:forecast_correct"`
	Resolved         bool    `gorm:"column:resolved;default:false;index"`
	CreatedAtUnix    int64   `gorm:"column:created_at"`
	ResolvedAtUnix   *int64  `gorm:"column:resolved_at"`
}

func (CalibrationModel) TableName() string { return "confidence_calibration" }

type ValuationCacheModel struct {
	ID               int64          `gorm:"column:id;primaryKey"`
	ConditionID      string         `gorm:"column:condition_id;uniqueIndex"`
	Probability      string         `gorm:"column:probability"`
	Confidence       string         `gorm:"column:confidence"`
	ReasoningSummary string         `gorm:"column:reasoning_summary"`
	KeyFactors       datatypes.JSON `gorm:"column:key_factors;type:TEXT"`
	DataQuality      string         `gorm:"column:data_quality"`
	TimeSensitivity  string         `gorm:"column:time_sensitivity"`
	CachedAtUnix     int64          `gorm:"column:cached_at"`
}

func (ValuationCacheModel) TableName() string { return "valuation_cache" }
