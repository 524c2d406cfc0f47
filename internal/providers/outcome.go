// Package providers contains the adapters for the external market-data
// sources and the closed outcome set their fetches return.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bloomo/eod-engine/internal/fundcache"
	"github.com/bloomo/eod-engine/internal/observ"
)

// Status is the closed set of fetch outcomes. Fallback logic is an
// explicit switch over these; adapters never signal control flow through
// returned errors.
type Status string

const (
	// StatusOK means the provider returned a usable value.
	StatusOK Status = "ok"
	// StatusRateLimited means the provider is throttling us (or a
	// required credential is absent): stop calling it for now and move
	// to the next provider or to cached data.
	StatusRateLimited Status = "rate_limited"
	// StatusNotFound means the provider answered but had no usable
	// value. Terminal for that provider.
	StatusNotFound Status = "not_found"
	// StatusTransient means a network/timeout/5xx failure that survived
	// the adapter's own retries.
	StatusTransient Status = "transient"
)

// Quote is a resolved price with provenance. Produced fresh every run,
// never persisted.
type Quote struct {
	Symbol string
	Price  float64
	AsOf   time.Time
	Source string
}

// LightInfo carries the cheap valuation fields. Nil pointer = provider
// had no value for that field.
type LightInfo struct {
	PE            *float64
	PS            *float64
	DividendYield *float64 // percent
}

// Merge fills this info's gaps from another source without overwriting
// values already present.
func (li *LightInfo) Merge(other LightInfo) {
	if li.PE == nil {
		li.PE = other.PE
	}
	if li.PS == nil {
		li.PS = other.PS
	}
	if li.DividendYield == nil {
		li.DividendYield = other.DividendYield
	}
}

// PriceProvider fetches a single symbol's latest daily close.
type PriceProvider interface {
	Name() string
	FetchPrice(ctx context.Context, symbol string) (Quote, Status)
}

// BatchPriceProvider fetches many symbols at once. A symbol absent from
// the returned map is NotFound for that symbol only; a partial batch is
// still StatusOK.
type BatchPriceProvider interface {
	Name() string
	FetchPrices(ctx context.Context, symbols []string) (map[string]Quote, Status)
}

// FXProvider fetches a single currency-pair rate.
type FXProvider interface {
	Name() string
	FetchFX(ctx context.Context, pair string) (float64, Status)
}

// StatementProvider fetches one fundamental statement document.
type StatementProvider interface {
	Name() string
	FetchStatement(ctx context.Context, symbol string, kind fundcache.Kind) (json.RawMessage, Status)
}

// logAttempt records one provider attempt for observability; attempts
// themselves are transient and drive only backoff/fallback decisions.
func logAttempt(provider, field, symbol string, status Status, latency time.Duration) {
	observ.IncCounter("provider_attempts_total", map[string]string{
		"provider": provider,
		"outcome":  string(status),
	})
	observ.RecordDuration("provider_latency", latency, map[string]string{"provider": provider})
	if status != StatusOK {
		observ.Log("provider_attempt_failed", map[string]any{
			"provider": provider,
			"field":    field,
			"symbol":   symbol,
			"outcome":  string(status),
		})
	}
}
