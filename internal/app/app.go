// Package app wires the configuration, repository, clients and the
// lifecycle controller into a runnable agent.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"polyagent/internal/agent"
	"polyagent/internal/budget"
	"polyagent/internal/config"
	"polyagent/internal/data"
	"polyagent/internal/execution"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/risk"
	"polyagent/internal/store"
	"polyagent/internal/valuation"
)

// expectedCallsPerCycle scales the per-call cost mean into a per-cycle
// projection for the survival check.
const expectedCallsPerCycle = 10

type App struct {
	cfg   *config.Config
	store *store.Store
	agent *agent.Agent
}

func New(cfg *config.Config, secrets config.Secrets) (*App, error) {
	if secrets.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("app: ANTHROPIC_API_KEY is required in %s mode", cfg.Agent.Mode)
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	wallet := execution.NewPaperWallet(cfg.Agent.InitialPaperBalanceMoney())
	exchange := market.NewCLOBClient(cfg.Exchange.GammaBaseURL, cfg.Exchange.CLOBBaseURL)
	scanner := market.NewScanner(exchange, market.ScanConfig{
		MaxMarkets:        cfg.Scanning.MaxMarkets,
		MinVolume24h:      cfg.Scanning.MinVolume24hMoney(),
		MaxResolutionDays: cfg.Scanning.MaxResolutionDays,
		MaxSpreadPct:      cfg.Scanning.MaxSpreadPctMoney(),
		Categories:        parseCategories(cfg.Scanning.Categories),
	}, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	aggregator := data.NewAggregator(
		data.NewWeatherSource(),
		data.NewSportsSource(),
		data.NewCryptoSource(),
		data.NewNewsSource(),
	)

	accountant := budget.NewAccountant(st, cfg.Agent.DailyAPIBudgetMoney(), expectedCallsPerCycle)
	calibrator := valuation.NewCalibrator(st)

	oracle := valuation.NewAnthropicClient(
		cfg.Valuation.BaseURL,
		secrets.AnthropicAPIKey,
		cfg.Valuation.ModelName,
		cfg.Valuation.MaxTokens,
		cfg.Execution.MaxRetries,
	)
	engine := valuation.NewEngine(
		oracle, st, wallet, accountant,
		valuation.Pricing{
			PriceIn:  cfg.Valuation.PriceInMoney(),
			PriceOut: cfg.Valuation.PriceOutMoney(),
		},
		cfg.Valuation.ModelName,
		time.Duration(cfg.Valuation.CacheTTLSeconds)*time.Second,
		cfg.Valuation.CacheBypassPriceMoveMoney(),
		cfg.Valuation.MaxConcurrentCalls,
	)

	tracker := risk.NewTracker()
	gateway := execution.NewPaperGateway(st, wallet)
	settler := execution.NewSettler(st, exchange, tracker, wallet, calibrator, cfg.Risk.StopLossPctMoney())

	a, err := agent.New(agent.Deps{
		Config:     cfg,
		Store:      st,
		Wallet:     wallet,
		Scanner:    scanner,
		Aggregator: aggregator,
		Engine:     engine,
		Calibrator: calibrator,
		Accountant: accountant,
		Tracker:    tracker,
		Gateway:    gateway,
		Settler:    settler,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &App{cfg: cfg, store: st, agent: a}, nil
}

// Run drives the agent until death or an interrupt. The in-flight cycle
// finishes and flushes before the repository closes.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := a.agent.Run(ctx)
	if cerr := a.store.Close(); cerr != nil {
		logger.Warnf("app: closing store: %v", cerr)
	}
	return err
}

func parseCategories(raw []string) []market.Category {
	out := make([]market.Category, 0, len(raw))
	for _, s := range raw {
		out = append(out, market.ParseCategory(s))
	}
	return out
}
