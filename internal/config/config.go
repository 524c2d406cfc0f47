package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Cache struct {
	Backend     string `yaml:"backend"` // file | badger
	Dir         string `yaml:"dir"`
	RefreshDays int    `yaml:"refresh_days"`
}

type Budgets struct {
	FundamentalsDaily int    `yaml:"fundamentals_daily"`
	LightInfoDaily    int    `yaml:"light_info_daily"`
	EventDaily        int    `yaml:"event_daily"`
	PersistPath       string `yaml:"persist_path"` // empty = per-run accounting only
}

type Yahoo struct {
	BatchSize      int `yaml:"batch_size"`
	BatchPauseMs   int `yaml:"batch_pause_ms"`
	MinIntervalMs  int `yaml:"min_interval_ms"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

type Tiingo struct {
	APIKey             string `yaml:"-"` // env only, never in the file
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	MaxRetries         int    `yaml:"max_retries"`
}

type AlphaVantage struct {
	APIKey             string `yaml:"-"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	MaxRetries         int    `yaml:"max_retries"`
	// Pause after every live statement call, the reciprocal of the
	// provider's per-minute ceiling.
	StatementIntervalSeconds int `yaml:"statement_interval_seconds"`
}

type Providers struct {
	Yahoo        Yahoo        `yaml:"yahoo"`
	Tiingo       Tiingo       `yaml:"tiingo"`
	AlphaVantage AlphaVantage `yaml:"alphavantage"`
}

type FX struct {
	YahooSymbol string `yaml:"yahoo_symbol"`
	StooqSymbol string `yaml:"stooq_symbol"`
}

type Root struct {
	UniversePath string    `yaml:"universe_path"`
	OutDir       string    `yaml:"out_dir"`
	Workers      int       `yaml:"workers"`
	Cache        Cache     `yaml:"cache"`
	Budgets      Budgets   `yaml:"budgets"`
	Providers    Providers `yaml:"providers"`
	FX           FX        `yaml:"fx"`
}

// Load reads the YAML run configuration and applies defaults for
// anything left zero. Credentials come from the environment, never from
// the file. The config is read once at run start and treated as
// immutable for the run's duration.
func Load(path string) (Root, error) {
	var c Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, err
		}
	}

	if c.UniversePath == "" {
		c.UniversePath = "universe.json"
	}
	if c.OutDir == "" {
		c.OutDir = "out"
	}
	if c.Workers == 0 {
		c.Workers = 4
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "data/cache/fundamentals"
	}
	if c.Cache.RefreshDays == 0 {
		c.Cache.RefreshDays = 30
	}

	if c.Budgets.FundamentalsDaily == 0 {
		c.Budgets.FundamentalsDaily = 24 // Alpha Vantage free tier minus headroom
	}
	if c.Budgets.LightInfoDaily == 0 {
		c.Budgets.LightInfoDaily = 50
	}
	if c.Budgets.EventDaily == 0 {
		c.Budgets.EventDaily = 25
	}

	if c.Providers.Yahoo.BatchSize == 0 {
		c.Providers.Yahoo.BatchSize = 50
	}
	if c.Providers.Yahoo.BatchPauseMs == 0 {
		c.Providers.Yahoo.BatchPauseMs = 1500
	}
	if c.Providers.Yahoo.TimeoutSeconds == 0 {
		c.Providers.Yahoo.TimeoutSeconds = 20
	}
	if c.Providers.Yahoo.MaxRetries == 0 {
		c.Providers.Yahoo.MaxRetries = 3
	}

	if c.Providers.Tiingo.RateLimitPerMinute == 0 {
		c.Providers.Tiingo.RateLimitPerMinute = 50
	}
	if c.Providers.Tiingo.TimeoutSeconds == 0 {
		c.Providers.Tiingo.TimeoutSeconds = 20
	}
	if c.Providers.Tiingo.MaxRetries == 0 {
		c.Providers.Tiingo.MaxRetries = 3
	}

	if c.Providers.AlphaVantage.RateLimitPerMinute == 0 {
		c.Providers.AlphaVantage.RateLimitPerMinute = 5
	}
	if c.Providers.AlphaVantage.TimeoutSeconds == 0 {
		c.Providers.AlphaVantage.TimeoutSeconds = 30
	}
	if c.Providers.AlphaVantage.MaxRetries == 0 {
		c.Providers.AlphaVantage.MaxRetries = 3
	}
	if c.Providers.AlphaVantage.StatementIntervalSeconds == 0 {
		c.Providers.AlphaVantage.StatementIntervalSeconds = 13 // ~5/min
	}

	if c.FX.YahooSymbol == "" {
		c.FX.YahooSymbol = "JPY=X"
	}
	if c.FX.StooqSymbol == "" {
		c.FX.StooqSymbol = "USDJPY"
	}

	c.Providers.Tiingo.APIKey = os.Getenv("TIINGO_API_KEY")
	c.Providers.AlphaVantage.APIKey = os.Getenv("ALPHAVANTAGE_API_KEY")

	return c, nil
}
