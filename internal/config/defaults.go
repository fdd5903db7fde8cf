package config

func (c *Config) applyDefaults() {
	a := &c.Agent
	if a.Mode == "" {
		a.Mode = ModePaper
	}
	if a.CycleIntervalSeconds <= 0 {
		a.CycleIntervalSeconds = 600
	}
	if a.InitialPaperBalance == "" {
		a.InitialPaperBalance = "100.00"
	}
	if a.LowFuelThreshold == "" {
		a.LowFuelThreshold = "10"
	}
	if a.DeathBalanceThreshold == "" {
		a.DeathBalanceThreshold = "0"
	}
	if a.APIReserve == "" {
		a.APIReserve = "0"
	}
	if a.DailyAPIBudget == "" {
		a.DailyAPIBudget = "5"
	}

	s := &c.Scanning
	if s.MaxMarkets <= 0 {
		s.MaxMarkets = 200
	}
	if s.MinVolume24h == "" {
		s.MinVolume24h = "5000"
	}
	if s.MaxResolutionDays <= 0 {
		s.MaxResolutionDays = 14
	}
	if s.MaxSpreadPct == "" {
		s.MaxSpreadPct = "0.05"
	}
	if len(s.Categories) == 0 {
		s.Categories = []string{"weather", "sports", "crypto", "politics", "other"}
	}

	v := &c.Valuation
	if v.ModelName == "" {
		v.ModelName = "claude-sonnet-4-20250514"
	}
	if v.BaseURL == "" {
		v.BaseURL = "https://api.anthropic.com"
	}
	if v.MaxTokens <= 0 {
		v.MaxTokens = 1024
	}
	if v.MinEdgeThreshold == "" {
		v.MinEdgeThreshold = "0.08"
	}
	if v.HighConfidenceEdge == "" {
		v.HighConfidenceEdge = "0.06"
	}
	if v.LowConfidenceEdge == "" {
		v.LowConfidenceEdge = "0.10"
	}
	if v.CacheTTLSeconds <= 0 {
		v.CacheTTLSeconds = 300
	}
	if v.CacheBypassPriceMove == "" {
		v.CacheBypassPriceMove = "0.02"
	}
	if v.PriceIn == "" {
		v.PriceIn = "3.00"
	}
	if v.PriceOut == "" {
		v.PriceOut = "15.00"
	}
	if v.MaxConcurrentCalls <= 0 {
		v.MaxConcurrentCalls = 4
	}

	r := &c.Risk
	if r.KellyFraction == "" {
		r.KellyFraction = "0.5"
	}
	if r.MaxPositionPct == "" {
		r.MaxPositionPct = "0.06"
	}
	if r.MaxTotalExposurePct == "" {
		r.MaxTotalExposurePct = "0.30"
	}
	if r.MaxPositionsPerCategory <= 0 {
		r.MaxPositionsPerCategory = 3
	}
	if r.MinPositionUSD == "" {
		r.MinPositionUSD = "1.0"
	}
	if r.ProfitCostRatio == "" {
		r.ProfitCostRatio = "1.0"
	}
	if r.StopLossPct == "" {
		r.StopLossPct = "0.20"
	}

	e := &c.Execution
	if e.OrderType == "" {
		e.OrderType = "limit"
	}
	if e.OrderTTLSeconds <= 0 {
		e.OrderTTLSeconds = 60
	}
	if e.MaxSlippagePct == "" {
		e.MaxSlippagePct = "0.02"
	}
	if e.MaxRetries <= 0 {
		e.MaxRetries = 3
	}

	if c.Monitoring.LogLevel == "" {
		c.Monitoring.LogLevel = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/polyagent.db"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 2
	}
	if c.Exchange.GammaBaseURL == "" {
		c.Exchange.GammaBaseURL = "https://gamma-api.polymarket.com"
	}
	if c.Exchange.CLOBBaseURL == "" {
		c.Exchange.CLOBBaseURL = "https://clob.polymarket.com"
	}
}
