package config

import (
	"fmt"

	"polyagent/internal/money"
)

func validate(cfg *Config) error {
	switch cfg.Agent.Mode {
	case ModePaper:
	case ModeLive:
		// Live order signing is deliberately unimplemented; refuse to
		// start rather than discover it mid-cycle.
		return fmt.Errorf("agent.mode=live: order signing is not implemented")
	case ModeBacktest:
		return fmt.Errorf("agent.mode=backtest: use the backtest tool, not the live loop")
	default:
		return fmt.Errorf("agent.mode must be one of paper|live|backtest, got %q", cfg.Agent.Mode)
	}

	decimals := map[string]string{
		"agent.initial_paper_balance":       cfg.Agent.InitialPaperBalance,
		"agent.low_fuel_threshold":          cfg.Agent.LowFuelThreshold,
		"agent.death_balance_threshold":     cfg.Agent.DeathBalanceThreshold,
		"agent.api_reserve":                 cfg.Agent.APIReserve,
		"agent.daily_api_budget":            cfg.Agent.DailyAPIBudget,
		"scanning.min_volume_24h":           cfg.Scanning.MinVolume24h,
		"scanning.max_spread_pct":           cfg.Scanning.MaxSpreadPct,
		"valuation.min_edge_threshold":      cfg.Valuation.MinEdgeThreshold,
		"valuation.high_confidence_edge":    cfg.Valuation.HighConfidenceEdge,
		"valuation.low_confidence_edge":     cfg.Valuation.LowConfidenceEdge,
		"valuation.cache_bypass_price_move": cfg.Valuation.CacheBypassPriceMove,
		"valuation.price_in":                cfg.Valuation.PriceIn,
		"valuation.price_out":               cfg.Valuation.PriceOut,
		"risk.kelly_fraction":               cfg.Risk.KellyFraction,
		"risk.max_position_pct":             cfg.Risk.MaxPositionPct,
		"risk.max_total_exposure_pct":       cfg.Risk.MaxTotalExposurePct,
		"risk.min_position_usd":             cfg.Risk.MinPositionUSD,
		"risk.profit_cost_ratio":            cfg.Risk.ProfitCostRatio,
		"risk.stop_loss_pct":                cfg.Risk.StopLossPct,
		"execution.max_slippage_pct":        cfg.Execution.MaxSlippagePct,
	}
	for key, raw := range decimals {
		if _, err := money.Parse(raw); err != nil {
			return fmt.Errorf("%s: invalid decimal %q: %w", key, raw, err)
		}
	}

	if cfg.Agent.InitialPaperBalanceMoney().IsNegative() {
		return fmt.Errorf("agent.initial_paper_balance must not be negative")
	}
	if cfg.Agent.DailyAPIBudgetMoney().IsNegative() {
		return fmt.Errorf("agent.daily_api_budget must not be negative")
	}
	if !cfg.Risk.KellyFractionMoney().IsPositive() || cfg.Risk.KellyFractionMoney().GreaterThan(money.One) {
		return fmt.Errorf("risk.kelly_fraction must be in (0, 1]")
	}
	if !cfg.Risk.MaxPositionPctMoney().IsPositive() {
		return fmt.Errorf("risk.max_position_pct must be positive")
	}
	if !cfg.Risk.MaxTotalExposurePctMoney().IsPositive() {
		return fmt.Errorf("risk.max_total_exposure_pct must be positive")
	}
	if cfg.Execution.OrderType != "limit" {
		return fmt.Errorf("execution.order_type: only limit orders are supported, got %q", cfg.Execution.OrderType)
	}
	return nil
}
