// Package engine runs one acquisition pass over the universe: batched
// prices with per-symbol fallback, FX, light valuation info, next
// corporate event, and budget-gated fundamentals refresh. A provider
// failure degrades the affected field, never the run.
package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bloomo/eod-engine/internal/budget"
	"github.com/bloomo/eod-engine/internal/fundcache"
	"github.com/bloomo/eod-engine/internal/observ"
	"github.com/bloomo/eod-engine/internal/providers"
	"github.com/bloomo/eod-engine/internal/rotation"
	"github.com/bloomo/eod-engine/internal/universe"
)

// LightInfoProvider yields valuation ratios for one symbol.
type LightInfoProvider interface {
	Name() string
	FetchLightInfo(ctx context.Context, symbol string) (providers.LightInfo, providers.Status)
}

// EventProvider yields the next corporate event date for one symbol.
type EventProvider interface {
	Name() string
	FetchNextEvent(ctx context.Context, symbol string) (string, providers.Status)
}

// FXRoute pairs an FX provider with the pair symbol it expects.
type FXRoute struct {
	Provider providers.FXProvider
	Pair     string
}

// Deps wires the engine to its providers, cache and ledgers. Any
// provider may be nil; the corresponding field is then skipped for the
// whole run.
type Deps struct {
	Batch          providers.BatchPriceProvider
	PriceFallbacks []providers.PriceProvider
	FXRoutes       []FXRoute

	LightPrimary  LightInfoProvider // budget-gated
	LightFallback LightInfoProvider
	Events        EventProvider
	Statements    providers.StatementProvider

	Cache fundcache.Store

	FundBudget  *budget.Ledger
	LightBudget *budget.Ledger
	EventBudget *budget.Ledger
}

// Options are run-shape knobs, all with workable zero-value defaults.
type Options struct {
	RefreshDays  int
	ForceRefresh bool
	// HistoryDepth caps how many annual reports a row carries per kind.
	HistoryDepth int
	// StatementInterval spaces live statement calls run-wide.
	StatementInterval time.Duration
	Workers           int
	Now               func() time.Time
}

type Engine struct {
	deps Deps
	opts Options

	stmtMu   sync.Mutex
	stmtNext time.Time
	// Set when the statement provider rate-limits; no further live
	// statement calls are made for the rest of the run.
	stmtLimited atomic.Bool
}

func New(deps Deps, opts Options) *Engine {
	if opts.RefreshDays == 0 {
		opts.RefreshDays = 30
	}
	if opts.HistoryDepth == 0 {
		opts.HistoryDepth = 6
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{deps: deps, opts: opts}
}

// Run executes one pass and always returns a snapshot; the error is
// non-nil only when the context was cancelled mid-run, and the snapshot
// then holds whatever was resolved before the cut.
func (e *Engine) Run(ctx context.Context, tickers []universe.Ticker) (*Snapshot, error) {
	start := e.opts.Now()
	symbols := universe.Symbols(tickers)

	snap := &Snapshot{Date: start, Rows: make([]Row, len(tickers))}
	var mu sync.Mutex
	addMissing := func(m Missing) {
		mu.Lock()
		snap.Missing = append(snap.Missing, m)
		mu.Unlock()
		observ.IncCounter("field_missing_total", map[string]string{"field": m.Field})
	}

	observ.Log("run_start", map[string]any{"symbols": len(symbols), "workers": e.opts.Workers})

	quotes := e.resolvePrices(ctx, symbols, addMissing)

	fxRate, fxSource := e.resolveFX(ctx)
	snap.FX, snap.FXSource = fxRate, fxSource
	if fxRate == nil && len(e.deps.FXRoutes) > 0 {
		addMissing(Missing{Symbol: "USD/JPY", Field: "fx", Reason: "all fx sources failed"})
	}

	var forced map[string]bool
	if e.deps.FundBudget != nil {
		quota := rotation.Quota(e.deps.FundBudget.Limit(), len(fundcache.Kinds))
		snap.Rotated = rotation.Eligible(symbols, start, quota)
		forced = rotation.EligibleSet(symbols, start, quota)
		observ.Log("rotation_window", map[string]any{"quota": quota, "eligible": snap.Rotated})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range tickers {
		i := i
		g.Go(func() error {
			t := tickers[i]
			row := Row{Ticker: t.Ticker, Name: t.Name, Sector: t.Sector, Industry: t.Industry}

			if q, ok := quotes[t.Ticker]; ok {
				price := q.Price
				row.Price = &price
				row.PriceSource = q.Source
				row.PriceAsOf = q.AsOf
				if fxRate != nil {
					jpy := price * *fxRate
					row.PriceJPY = &jpy
				}
			}

			e.resolveLightInfo(gctx, t.Ticker, &row, addMissing)
			e.resolveEvent(gctx, t.Ticker, &row, addMissing)
			row.Fundamentals = e.resolveStatements(gctx, t.Ticker, forced[t.Ticker], addMissing)

			snap.Rows[i] = row
			return gctx.Err()
		})
	}
	err := g.Wait()

	observ.RecordDuration("run_duration_seconds", e.opts.Now().Sub(start), nil)
	observ.Log("run_done", map[string]any{
		"rows":    len(snap.Rows),
		"missing": len(snap.Missing),
		"rotated": len(snap.Rotated),
	})
	return snap, err
}

// resolvePrices does one batch pass, then walks the fallback chain for
// every symbol the batch did not cover. A provider that rate-limits or
// errors is simply skipped for that symbol; the adapters own their
// retry policy.
func (e *Engine) resolvePrices(ctx context.Context, symbols []string, addMissing func(Missing)) map[string]providers.Quote {
	out := make(map[string]providers.Quote, len(symbols))
	if e.deps.Batch == nil && len(e.deps.PriceFallbacks) == 0 {
		return out
	}
	batchReason := "no batch provider"
	if e.deps.Batch != nil {
		quotes, status := e.deps.Batch.FetchPrices(ctx, symbols)
		if status == providers.StatusOK {
			for sym, q := range quotes {
				out[sym] = q
			}
			batchReason = e.deps.Batch.Name() + ":absent"
		} else {
			batchReason = e.deps.Batch.Name() + ":" + string(status)
			observ.Log("price_batch_failed", map[string]any{"provider": e.deps.Batch.Name(), "status": string(status)})
		}
	}

	for _, sym := range symbols {
		if _, ok := out[sym]; ok {
			continue
		}
		reasons := []string{batchReason}
		resolved := false
		for _, p := range e.deps.PriceFallbacks {
			q, st := p.FetchPrice(ctx, sym)
			if st == providers.StatusOK {
				out[sym] = q
				resolved = true
				observ.IncCounter("price_fallback_total", map[string]string{"provider": p.Name()})
				break
			}
			reasons = append(reasons, p.Name()+":"+string(st))
		}
		if !resolved {
			addMissing(Missing{Symbol: sym, Field: "price", Reason: strings.Join(reasons, ", ")})
		}
	}
	return out
}

func (e *Engine) resolveFX(ctx context.Context) (*float64, string) {
	for _, route := range e.deps.FXRoutes {
		rate, st := route.Provider.FetchFX(ctx, route.Pair)
		if st == providers.StatusOK {
			return &rate, route.Provider.Name()
		}
		observ.Log("fx_source_failed", map[string]any{"provider": route.Provider.Name(), "pair": route.Pair, "status": string(st)})
	}
	return nil, ""
}

// resolveLightInfo tries the budget-gated primary, then merges gaps
// from the fallback. A missing record is appended only when every
// ratio stayed unresolved; a symbol with no dividend is not an error.
func (e *Engine) resolveLightInfo(ctx context.Context, symbol string, row *Row, addMissing func(Missing)) {
	if e.deps.LightPrimary == nil && e.deps.LightFallback == nil {
		return
	}
	var li providers.LightInfo
	if e.deps.LightPrimary != nil && reserve(e.deps.LightBudget, 1) {
		got, st := e.deps.LightPrimary.FetchLightInfo(ctx, symbol)
		if st != providers.StatusOK && st != providers.StatusNotFound {
			// Throttled or broken: the call bought nothing, give the
			// unit back.
			refund(e.deps.LightBudget, 1)
		}
		if st == providers.StatusOK {
			li = got
		}
	}
	if (li.PE == nil || li.PS == nil || li.DividendYield == nil) && e.deps.LightFallback != nil {
		got, st := e.deps.LightFallback.FetchLightInfo(ctx, symbol)
		if st == providers.StatusOK {
			li.Merge(got)
		}
	}
	row.PE, row.PS, row.DividendYield = li.PE, li.PS, li.DividendYield
	if li.PE == nil && li.PS == nil && li.DividendYield == nil {
		addMissing(Missing{Symbol: symbol, Field: "light_info", Reason: "no source returned data"})
	}
}

func (e *Engine) resolveEvent(ctx context.Context, symbol string, row *Row, addMissing func(Missing)) {
	if e.deps.Events == nil {
		return
	}
	if !reserve(e.deps.EventBudget, 1) {
		addMissing(Missing{Symbol: symbol, Field: "next_event", Reason: "budget exhausted"})
		return
	}
	// Event lookups are charged per attempt, whatever comes back.
	ev, st := e.deps.Events.FetchNextEvent(ctx, symbol)
	if st == providers.StatusOK {
		row.NextEvent = ev
	}
	// NotFound is a clean "no scheduled event"; only failures count.
	if st == providers.StatusRateLimited || st == providers.StatusTransient {
		addMissing(Missing{Symbol: symbol, Field: "next_event", Reason: e.deps.Events.Name() + ":" + string(st)})
	}
}

// A nil ledger means the field is not budget-gated.
func reserve(l *budget.Ledger, n int) bool {
	return l == nil || l.TryConsume(n)
}

func refund(l *budget.Ledger, n int) {
	if l != nil {
		l.Refund(n)
	}
}
