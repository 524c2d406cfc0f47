package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bloomo/eod-engine/internal/backoff"
)

// YahooConfig holds the knobs for the Yahoo adapter.
type YahooConfig struct {
	BaseURL        string
	TimeoutSeconds int
	BatchSize      int
	BatchPauseMs   int
	MinIntervalMs  int
	MaxRetries     int
	Backoff        backoff.Policy
}

// Yahoo is the cheapest price source and the first stop of every price
// cascade: one batched call covers the whole universe. It also serves
// the FX scalar, the light valuation fields, and the next-event lookup.
type Yahoo struct {
	cfg        YahooConfig
	httpClient *http.Client

	// serialize live calls so concurrency never defeats the per-minute
	// ceiling; see MinIntervalMs
	mu   sync.Mutex
	next time.Time
}

// NewYahoo creates the adapter, applying free-tier defaults.
func NewYahoo(cfg YahooConfig) *Yahoo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchPauseMs < 0 {
		cfg.BatchPauseMs = 0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.Default
	}
	return &Yahoo{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

// pace enforces the minimum interval between live calls. Each caller
// reserves its slot under the lock before sleeping, so concurrent
// callers can never read the same deadline and fire together.
func (y *Yahoo) pace(ctx context.Context) error {
	if y.cfg.MinIntervalMs <= 0 {
		return nil
	}
	interval := time.Duration(y.cfg.MinIntervalMs) * time.Millisecond
	y.mu.Lock()
	now := time.Now()
	slot := y.next
	if slot.Before(now) {
		slot = now
	}
	y.next = slot.Add(interval)
	y.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// doGet performs one GET with bounded retries for transient failures.
// A 429 (or a throttling body) is returned immediately as rate-limited,
// never retried against Yahoo within the same call.
func (y *Yahoo) doGet(ctx context.Context, rawURL string) ([]byte, Status) {
	for attempt := 0; attempt < y.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := y.cfg.Backoff.Sleep(ctx, attempt-1); err != nil {
				return nil, StatusTransient
			}
		}
		if err := y.pace(ctx); err != nil {
			return nil, StatusTransient
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, StatusTransient
		}
		// Yahoo rejects the default Go UA in some environments.
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; BloomoEOD/1.0)")

		resp, err := y.httpClient.Do(req)
		if err != nil {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || strings.Contains(string(body), "Too Many Requests") {
			return nil, StatusRateLimited
		}
		if resp.StatusCode >= 500 {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, StatusNotFound
		}
		return body, StatusOK
	}
	return nil, StatusTransient
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			RegularMarketTime  int64   `json:"regularMarketTime"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// FetchPrices resolves latest prices for many symbols, batched. A
// symbol missing from the response map is NotFound for that symbol
// only; a partial batch never fails the whole batch.
func (y *Yahoo) FetchPrices(ctx context.Context, symbols []string) (map[string]Quote, Status) {
	out := make(map[string]Quote, len(symbols))
	worst := StatusOK

	for start := 0; start < len(symbols); start += y.cfg.BatchSize {
		end := start + y.cfg.BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := symbols[start:end]

		if start > 0 && y.cfg.BatchPauseMs > 0 {
			t := time.NewTimer(time.Duration(y.cfg.BatchPauseMs) * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return out, worst
			case <-t.C:
			}
		}

		normalized := make([]string, len(chunk))
		back := make(map[string]string, len(chunk)) // yahoo symbol -> our ticker
		for i, s := range chunk {
			normalized[i] = YahooSymbol(s)
			back[normalized[i]] = s
		}

		u := fmt.Sprintf("%s/v7/finance/quote?symbols=%s",
			y.cfg.BaseURL, url.QueryEscape(strings.Join(normalized, ",")))
		started := time.Now()
		body, st := y.doGet(ctx, u)
		logAttempt(y.Name(), "price_batch", strings.Join(chunk, ","), st, time.Since(started))
		if st != StatusOK {
			// one bad chunk leaves its symbols unresolved, not the run
			worst = st
			continue
		}

		var parsed yahooQuoteResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			worst = StatusNotFound
			continue
		}
		for _, r := range parsed.QuoteResponse.Result {
			ticker, ok := back[r.Symbol]
			if !ok || r.RegularMarketPrice <= 0 {
				continue
			}
			out[ticker] = Quote{
				Symbol: ticker,
				Price:  r.RegularMarketPrice,
				AsOf:   time.Unix(r.RegularMarketTime, 0).UTC(),
				Source: y.Name(),
			}
		}
	}

	if len(out) > 0 {
		return out, StatusOK
	}
	if worst == StatusOK {
		worst = StatusNotFound
	}
	return out, worst
}

// FetchFX resolves a currency pair ("JPY=X" style symbol) as a scalar.
func (y *Yahoo) FetchFX(ctx context.Context, pair string) (float64, Status) {
	quotes, st := y.FetchPrices(ctx, []string{pair})
	if st != StatusOK {
		return 0, st
	}
	q, ok := quotes[pair]
	if !ok {
		return 0, StatusNotFound
	}
	return q.Price, StatusOK
}

type yahooSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			SummaryDetail struct {
				TrailingPE    *yahooRaw `json:"trailingPE"`
				DividendYield *yahooRaw `json:"dividendYield"`
				PriceToSales  *yahooRaw `json:"priceToSalesTrailing12Months"`
			} `json:"summaryDetail"`
			CalendarEvents struct {
				Earnings struct {
					EarningsDate []struct {
						Fmt string `json:"fmt"`
					} `json:"earningsDate"`
				} `json:"earnings"`
			} `json:"calendarEvents"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

type yahooRaw struct {
	Raw float64 `json:"raw"`
}

func (y *Yahoo) fetchSummary(ctx context.Context, symbol, modules, field string) (*yahooSummaryResponse, Status) {
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s",
		y.cfg.BaseURL, url.PathEscape(YahooSymbol(symbol)), modules)
	started := time.Now()
	body, st := y.doGet(ctx, u)
	logAttempt(y.Name(), field, symbol, st, time.Since(started))
	if st != StatusOK {
		return nil, st
	}
	var parsed yahooSummaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.QuoteSummary.Result) == 0 {
		return nil, StatusNotFound
	}
	return &parsed, StatusOK
}

// FetchLightInfo returns P/E, P/S and dividend yield where Yahoo has
// them. Used as the fallback behind the fundamentals provider.
func (y *Yahoo) FetchLightInfo(ctx context.Context, symbol string) (LightInfo, Status) {
	parsed, st := y.fetchSummary(ctx, symbol, "summaryDetail", "light_info")
	if st != StatusOK {
		return LightInfo{}, st
	}
	detail := parsed.QuoteSummary.Result[0].SummaryDetail

	var info LightInfo
	if detail.TrailingPE != nil {
		v := detail.TrailingPE.Raw
		info.PE = &v
	}
	if detail.PriceToSales != nil {
		v := detail.PriceToSales.Raw
		info.PS = &v
	}
	if detail.DividendYield != nil {
		v := detail.DividendYield.Raw * 100 // Yahoo reports a fraction
		info.DividendYield = &v
	}
	if info.PE == nil && info.PS == nil && info.DividendYield == nil {
		return info, StatusNotFound
	}
	return info, StatusOK
}

// FetchNextEvent returns the next earnings date as YYYY-MM-DD. This is
// a non-core field: one conservative attempt, and any failure simply
// reads as "no event known".
func (y *Yahoo) FetchNextEvent(ctx context.Context, symbol string) (string, Status) {
	parsed, st := y.fetchSummary(ctx, symbol, "calendarEvents", "next_event")
	if st != StatusOK {
		return "", st
	}
	dates := parsed.QuoteSummary.Result[0].CalendarEvents.Earnings.EarningsDate
	if len(dates) == 0 || dates[0].Fmt == "" {
		return "", StatusNotFound
	}
	s := dates[0].Fmt
	if len(s) > 10 {
		s = s[:10]
	}
	return s, StatusOK
}
