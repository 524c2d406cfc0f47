package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bloomo/eod-engine/internal/backoff"
	"golang.org/x/time/rate"
)

// TiingoConfig holds the knobs for the Tiingo adapter.
type TiingoConfig struct {
	APIKey             string
	BaseURL            string
	TimeoutSeconds     int
	RateLimitPerMinute int
	MaxRetries         int
	Backoff            backoff.Policy
}

// Tiingo is the dedicated-EOD price provider, second in the price
// cascade. A missing API key reads as rate-limited so the cascade moves
// on instead of crashing.
type Tiingo struct {
	cfg        TiingoConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewTiingo(cfg TiingoConfig) *Tiingo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tiingo.com"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 20
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.Default
	}
	return &Tiingo{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
	}
}

func (t *Tiingo) Name() string { return "tiingo" }

type tiingoPrice struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// FetchPrice returns the latest daily close for one symbol.
func (t *Tiingo) FetchPrice(ctx context.Context, symbol string) (Quote, Status) {
	started := time.Now()
	q, st := t.fetchPrice(ctx, symbol)
	logAttempt(t.Name(), "price", symbol, st, time.Since(started))
	return q, st
}

func (t *Tiingo) fetchPrice(ctx context.Context, symbol string) (Quote, Status) {
	if t.cfg.APIKey == "" {
		// No credential: same handling as an explicit throttle.
		return Quote{}, StatusRateLimited
	}

	u := fmt.Sprintf("%s/tiingo/daily/%s/prices?token=%s&resampleFreq=daily&format=json",
		t.cfg.BaseURL, url.PathEscape(symbol), url.QueryEscape(t.cfg.APIKey))

	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := t.cfg.Backoff.Sleep(ctx, attempt-1); err != nil {
				return Quote{}, StatusTransient
			}
		}
		if err := t.limiter.Wait(ctx); err != nil {
			return Quote{}, StatusTransient
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return Quote{}, StatusTransient
		}
		resp, err := t.httpClient.Do(req)
		if err != nil {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return Quote{}, StatusRateLimited
		case resp.StatusCode >= 500:
			continue
		case resp.StatusCode != http.StatusOK:
			return Quote{}, StatusNotFound
		}

		var prices []tiingoPrice
		if err := json.Unmarshal(body, &prices); err != nil || len(prices) == 0 {
			return Quote{}, StatusNotFound
		}
		last := prices[len(prices)-1]
		if last.Close <= 0 {
			return Quote{}, StatusNotFound
		}
		asOf, _ := time.Parse(time.RFC3339, last.Date)
		return Quote{Symbol: symbol, Price: last.Close, AsOf: asOf, Source: t.Name()}, StatusOK
	}
	return Quote{}, StatusTransient
}
