// Command fetch runs one end-of-day acquisition pass: prices, FX,
// valuation ratios, next events and budget-gated fundamentals for every
// ticker in the universe, then writes the dated report files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloomo/eod-engine/internal/budget"
	"github.com/bloomo/eod-engine/internal/config"
	"github.com/bloomo/eod-engine/internal/engine"
	"github.com/bloomo/eod-engine/internal/fundcache"
	"github.com/bloomo/eod-engine/internal/observ"
	"github.com/bloomo/eod-engine/internal/providers"
	"github.com/bloomo/eod-engine/internal/report"
	"github.com/bloomo/eod-engine/internal/universe"
)

func main() {
	var cfgPath string
	var universePath string
	var refresh bool
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&universePath, "universe", "", "universe path (overrides config)")
	flag.BoolVar(&refresh, "refresh", false, "force-refresh all fundamentals, budget permitting")
	flag.Parse()

	// Work happens in run so deferred cleanup (cache close) fires on
	// every exit path; log.Fatal would skip it.
	if err := run(cfgPath, universePath, refresh); err != nil {
		log.Fatal(err)
	}
}

func run(cfgPath, universePath string, refresh bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if universePath != "" {
		cfg.UniversePath = universePath
	}

	tickers, err := universe.Load(cfg.UniversePath)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	store, err := fundcache.Open(cfg.Cache.Backend, cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	fundBudget := budget.NewLedger("alphavantage", cfg.Budgets.FundamentalsDaily)
	lightBudget := budget.NewLedger("alphavantage_overview", cfg.Budgets.LightInfoDaily)
	eventBudget := budget.NewLedger("yahoo_events", cfg.Budgets.EventDaily)
	today := time.Now().UTC()
	if cfg.Budgets.PersistPath != "" {
		budget.LoadDay(cfg.Budgets.PersistPath, today, fundBudget, lightBudget, eventBudget)
	}

	yahoo := providers.NewYahoo(providers.YahooConfig{
		TimeoutSeconds: cfg.Providers.Yahoo.TimeoutSeconds,
		BatchSize:      cfg.Providers.Yahoo.BatchSize,
		BatchPauseMs:   cfg.Providers.Yahoo.BatchPauseMs,
		MinIntervalMs:  cfg.Providers.Yahoo.MinIntervalMs,
		MaxRetries:     cfg.Providers.Yahoo.MaxRetries,
	})
	tiingo := providers.NewTiingo(providers.TiingoConfig{
		APIKey:             cfg.Providers.Tiingo.APIKey,
		TimeoutSeconds:     cfg.Providers.Tiingo.TimeoutSeconds,
		RateLimitPerMinute: cfg.Providers.Tiingo.RateLimitPerMinute,
		MaxRetries:         cfg.Providers.Tiingo.MaxRetries,
	})
	stooq := providers.NewStooq(providers.StooqConfig{})
	alpha := providers.NewAlphaVantage(providers.AlphaVantageConfig{
		APIKey:             cfg.Providers.AlphaVantage.APIKey,
		RateLimitPerMinute: cfg.Providers.AlphaVantage.RateLimitPerMinute,
		TimeoutSeconds:     cfg.Providers.AlphaVantage.TimeoutSeconds,
		MaxRetries:         cfg.Providers.AlphaVantage.MaxRetries,
	})

	eng := engine.New(engine.Deps{
		Batch:          yahoo,
		PriceFallbacks: []providers.PriceProvider{tiingo, stooq},
		FXRoutes: []engine.FXRoute{
			{Provider: yahoo, Pair: cfg.FX.YahooSymbol},
			{Provider: stooq, Pair: cfg.FX.StooqSymbol},
		},
		LightPrimary:  alpha,
		LightFallback: yahoo,
		Events:        yahoo,
		Statements:    alpha,
		Cache:         store,
		FundBudget:    fundBudget,
		LightBudget:   lightBudget,
		EventBudget:   eventBudget,
	}, engine.Options{
		RefreshDays:       cfg.Cache.RefreshDays,
		ForceRefresh:      refresh,
		StatementInterval: time.Duration(cfg.Providers.AlphaVantage.StatementIntervalSeconds) * time.Second,
		Workers:           cfg.Workers,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, runErr := eng.Run(ctx, tickers)

	if cfg.Budgets.PersistPath != "" {
		if err := budget.SaveDay(cfg.Budgets.PersistPath, today, fundBudget, lightBudget, eventBudget); err != nil {
			observ.Log("budget_save_failed", map[string]any{"err": err.Error()})
		}
	}

	dir, err := report.Write(cfg.OutDir, snap)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	observ.LogSummary()
	fmt.Printf("wrote %s (%d rows, %d missing)\n", dir, len(snap.Rows), len(snap.Missing))

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return nil
}
