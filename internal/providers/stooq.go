package providers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StooqConfig holds the knobs for the Stooq adapter.
type StooqConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// Stooq is the free delayed-quote aggregator at the tail of the price
// cascade. No credential and a generous rate limit, but data can lag a
// day; acceptable as last resort. It also serves the usdjpy FX pair.
type Stooq struct {
	cfg        StooqConfig
	httpClient *http.Client
}

func NewStooq(cfg StooqConfig) *Stooq {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://stooq.com"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 20
	}
	return &Stooq{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (s *Stooq) Name() string { return "stooq" }

// FetchPrice returns the latest daily close for one US symbol.
func (s *Stooq) FetchPrice(ctx context.Context, symbol string) (Quote, Status) {
	started := time.Now()
	price, date, st := s.fetchClose(ctx, StooqSymbol(symbol))
	logAttempt(s.Name(), "price", symbol, st, time.Since(started))
	if st != StatusOK {
		return Quote{}, st
	}
	return Quote{Symbol: symbol, Price: price, AsOf: date, Source: s.Name()}, StatusOK
}

// FetchFX serves currency pairs by Stooq symbol (e.g. "usdjpy").
func (s *Stooq) FetchFX(ctx context.Context, pair string) (float64, Status) {
	started := time.Now()
	price, _, st := s.fetchClose(ctx, strings.ToLower(pair))
	logAttempt(s.Name(), "fx", pair, st, time.Since(started))
	return price, st
}

// fetchClose hits the one-line CSV endpoint:
// Symbol,Date,Time,Open,High,Low,Close,Volume with "N/D" for no data.
func (s *Stooq) fetchClose(ctx context.Context, stooqSymbol string) (float64, time.Time, Status) {
	u := fmt.Sprintf("%s/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv", s.cfg.BaseURL, stooqSymbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, time.Time{}, StatusTransient
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, time.Time{}, StatusTransient
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, time.Time{}, StatusRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return 0, time.Time{}, StatusNotFound
	}

	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil || len(records) < 2 {
		return 0, time.Time{}, StatusNotFound
	}
	row := records[1]
	// Columns: Symbol, Date, Time, Open, High, Low, Close, Volume
	if len(row) < 7 || row[6] == "N/D" {
		return 0, time.Time{}, StatusNotFound
	}
	close_, err := strconv.ParseFloat(row[6], 64)
	if err != nil || close_ <= 0 {
		return 0, time.Time{}, StatusNotFound
	}
	date, _ := time.Parse("2006-01-02", row[1])
	return close_, date, StatusOK
}
