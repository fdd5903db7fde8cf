package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyagent/internal/money"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ModePaper, cfg.Agent.Mode)
	assert.Equal(t, 600, cfg.Agent.CycleIntervalSeconds)
	assert.True(t, cfg.Agent.DailyAPIBudgetMoney().Equal(money.MustParse("5")))
	assert.True(t, cfg.Agent.LowFuelThresholdMoney().Equal(money.MustParse("10")))
	assert.Equal(t, 4, cfg.Valuation.MaxConcurrentCalls)
	assert.True(t, cfg.Risk.MaxPositionPctMoney().Equal(money.MustParse("0.06")))
	assert.Equal(t, 3, cfg.Risk.MaxPositionsPerCategory)
	assert.Equal(t, 14, cfg.Scanning.MaxResolutionDays)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[agent]
mode = "paper"
cycle_interval_seconds = 60
initial_paper_balance = "250.00"
daily_api_budget = "2.5"

[scanning]
max_markets = 50
categories = ["crypto", "politics"]

[risk]
kelly_fraction = "0.25"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Agent.CycleIntervalSeconds)
	assert.True(t, cfg.Agent.InitialPaperBalanceMoney().Equal(money.MustParse("250")))
	assert.True(t, cfg.Agent.DailyAPIBudgetMoney().Equal(money.MustParse("2.5")))
	assert.Equal(t, []string{"crypto", "politics"}, cfg.Scanning.Categories)
	assert.True(t, cfg.Risk.KellyFractionMoney().Equal(money.MustParse("0.25")))
	// Untouched sections keep defaults.
	assert.Equal(t, "limit", cfg.Execution.OrderType)
}

func TestLiveModeRejected(t *testing.T) {
	path := writeConfig(t, `
[agent]
mode = "live"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not implemented")
}

func TestBacktestModeRejected(t *testing.T) {
	path := writeConfig(t, `
[agent]
mode = "backtest"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBadDecimalRejected(t *testing.T) {
	path := writeConfig(t, `
[agent]
initial_paper_balance = "a-hundred"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decimal")
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
