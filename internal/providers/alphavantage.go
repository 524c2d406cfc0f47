package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bloomo/eod-engine/internal/backoff"
	"github.com/bloomo/eod-engine/internal/fundcache"
)

// AlphaVantageConfig holds configuration for the Alpha Vantage adapter.
type AlphaVantageConfig struct {
	APIKey             string
	BaseURL            string
	RateLimitPerMinute int
	TimeoutSeconds     int
	MaxRetries         int
	Backoff            backoff.Policy
}

// AlphaVantage serves the expensive fields: fundamental statements and
// the OVERVIEW valuation document. Every call here is budget-gated by
// the orchestrator; this adapter only handles the wire behavior.
type AlphaVantage struct {
	cfg         AlphaVantageConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// statement kind -> Alpha Vantage function name
var alphaFunctions = map[fundcache.Kind]string{
	fundcache.KindIncome:   "INCOME_STATEMENT",
	fundcache.KindBalance:  "BALANCE_SHEET",
	fundcache.KindCashflow: "CASH_FLOW",
}

// NewAlphaVantage creates the adapter with free-tier defaults.
func NewAlphaVantage(cfg AlphaVantageConfig) *AlphaVantage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 5 // free tier
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.Default
	}
	return &AlphaVantage{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
	}
}

func (av *AlphaVantage) Name() string { return "alphavantage" }

// FetchStatement fetches one statement document. The payload is kept
// opaque; the cache stores it as-is.
func (av *AlphaVantage) FetchStatement(ctx context.Context, symbol string, kind fundcache.Kind) (json.RawMessage, Status) {
	function, ok := alphaFunctions[kind]
	if !ok {
		return nil, StatusNotFound
	}
	started := time.Now()
	body, st := av.query(ctx, function, symbol)
	logAttempt(av.Name(), "statement_"+string(kind), symbol, st, time.Since(started))
	if st != StatusOK {
		return nil, st
	}
	return body, StatusOK
}

// FetchLightInfo extracts P/E, P/S and dividend yield from OVERVIEW.
func (av *AlphaVantage) FetchLightInfo(ctx context.Context, symbol string) (LightInfo, Status) {
	started := time.Now()
	body, st := av.query(ctx, "OVERVIEW", symbol)
	logAttempt(av.Name(), "light_info", symbol, st, time.Since(started))
	if st != StatusOK {
		return LightInfo{}, st
	}

	var overview map[string]string
	if err := json.Unmarshal(body, &overview); err != nil || len(overview) == 0 {
		return LightInfo{}, StatusNotFound
	}

	var info LightInfo
	info.PE = alphaFloat(overview["PERatio"])
	info.PS = alphaFloat(overview["PriceToSalesRatioTTM"])
	if y := alphaFloat(overview["DividendYield"]); y != nil {
		pct := *y * 100 // reported as a fraction
		info.DividendYield = &pct
	}
	if info.PE == nil && info.PS == nil && info.DividendYield == nil {
		return info, StatusNotFound
	}
	return info, StatusOK
}

// query performs one budgeted GET against the query endpoint with
// bounded retries for transient failures. The free tier signals
// throttling either with a 429 or with a 200 carrying a {"Note": ...}
// or {"Information": ...} payload; both read as rate-limited and are
// never retried here.
func (av *AlphaVantage) query(ctx context.Context, function, symbol string) (json.RawMessage, Status) {
	if av.cfg.APIKey == "" {
		return nil, StatusRateLimited
	}

	params := url.Values{
		"function": {function},
		"symbol":   {symbol},
		"apikey":   {av.cfg.APIKey},
	}
	u := av.cfg.BaseURL + "/query?" + params.Encode()

	for attempt := 0; attempt < av.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := av.cfg.Backoff.Sleep(ctx, attempt-1); err != nil {
				return nil, StatusTransient
			}
		}
		if err := av.rateLimiter.Wait(ctx); err != nil {
			return nil, StatusTransient
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, StatusTransient
		}
		resp, err := av.httpClient.Do(req)
		if err != nil {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			continue
		}

		text := strings.TrimSpace(string(body))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests,
			strings.HasPrefix(text, `{"Note":`),
			strings.HasPrefix(text, `{"Information":`):
			return nil, StatusRateLimited
		case resp.StatusCode >= 500:
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, StatusNotFound
		}

		var probe map[string]json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return nil, StatusNotFound
		}
		if _, bad := probe["Error Message"]; bad || len(probe) == 0 {
			return nil, StatusNotFound
		}
		return body, StatusOK
	}
	return nil, StatusTransient
}

func alphaFloat(s string) *float64 {
	if s == "" || s == "None" || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// LatestAnnual returns the first (most recent) report under the given
// array key of a statement payload, or nil.
func LatestAnnual(payload json.RawMessage, key string) json.RawMessage {
	reports := AnnualSeries(payload, key, 1)
	if len(reports) == 0 {
		return nil
	}
	return reports[0]
}

// AnnualSeries returns up to n most-recent reports under the given
// array key ("annualReports" for statements).
func AnnualSeries(payload json.RawMessage, key string, n int) []json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(doc[key], &arr); err != nil {
		return nil
	}
	if n > 0 && len(arr) > n {
		arr = arr[:n]
	}
	return arr
}

// AlphaFunction exposes the function name for a kind; the rotation
// helper command uses it to explain call costs.
func AlphaFunction(kind fundcache.Kind) string {
	fn, ok := alphaFunctions[kind]
	if !ok {
		return ""
	}
	return fn
}
