package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.Cache.RefreshDays != 30 {
		t.Errorf("Cache.RefreshDays = %d, want 30", c.Cache.RefreshDays)
	}
	if c.Budgets.FundamentalsDaily != 24 {
		t.Errorf("Budgets.FundamentalsDaily = %d, want 24", c.Budgets.FundamentalsDaily)
	}
	if c.Providers.AlphaVantage.StatementIntervalSeconds != 13 {
		t.Errorf("StatementIntervalSeconds = %d, want 13", c.Providers.AlphaVantage.StatementIntervalSeconds)
	}
	if c.Cache.Backend != "file" {
		t.Errorf("Cache.Backend = %q, want file", c.Cache.Backend)
	}
	if c.FX.YahooSymbol != "JPY=X" {
		t.Errorf("FX.YahooSymbol = %q, want JPY=X", c.FX.YahooSymbol)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
universe_path: data/universe.json
workers: 2
cache:
  backend: badger
  refresh_days: 7
budgets:
  fundamentals_daily: 6
  persist_path: data/budget.json
providers:
  yahoo:
    batch_size: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.Cache.Backend != "badger" {
		t.Errorf("Cache.Backend = %q, want badger", c.Cache.Backend)
	}
	if c.Cache.RefreshDays != 7 {
		t.Errorf("Cache.RefreshDays = %d, want 7", c.Cache.RefreshDays)
	}
	if c.Budgets.FundamentalsDaily != 6 {
		t.Errorf("Budgets.FundamentalsDaily = %d, want 6", c.Budgets.FundamentalsDaily)
	}
	if c.Budgets.PersistPath != "data/budget.json" {
		t.Errorf("Budgets.PersistPath = %q", c.Budgets.PersistPath)
	}
	if c.Providers.Yahoo.BatchSize != 10 {
		t.Errorf("Yahoo.BatchSize = %d, want 10", c.Providers.Yahoo.BatchSize)
	}
	// Untouched fields still default.
	if c.Providers.Yahoo.BatchPauseMs != 1500 {
		t.Errorf("Yahoo.BatchPauseMs = %d, want default 1500", c.Providers.Yahoo.BatchPauseMs)
	}
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	t.Setenv("TIINGO_API_KEY", "tk-env")
	t.Setenv("ALPHAVANTAGE_API_KEY", "av-env")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Providers.Tiingo.APIKey != "tk-env" {
		t.Errorf("Tiingo.APIKey = %q, want tk-env", c.Providers.Tiingo.APIKey)
	}
	if c.Providers.AlphaVantage.APIKey != "av-env" {
		t.Errorf("AlphaVantage.APIKey = %q, want av-env", c.Providers.AlphaVantage.APIKey)
	}
}
