package engine

import (
	"context"
	"time"

	"github.com/bloomo/eod-engine/internal/fundcache"
	"github.com/bloomo/eod-engine/internal/observ"
	"github.com/bloomo/eod-engine/internal/providers"
)

const annualReportsKey = "annualReports"

// resolveStatements settles all three statement kinds for one symbol.
// The decision per kind: refresh when forced by rotation, forced by
// flag, absent from cache, or aged past the refresh threshold;
// otherwise serve the cached entry untouched. A refresh that the
// budget cannot cover falls back to whatever the cache holds, stale
// included.
func (e *Engine) resolveStatements(ctx context.Context, symbol string, forced bool, addMissing func(Missing)) map[fundcache.Kind]Statement {
	if e.deps.Statements == nil || e.deps.Cache == nil {
		return nil
	}
	now := e.opts.Now()
	out := make(map[fundcache.Kind]Statement, len(fundcache.Kinds))
	for _, kind := range fundcache.Kinds {
		entry, cached, err := e.deps.Cache.Get(symbol, kind)
		if err != nil {
			observ.Log("cache_get_failed", map[string]any{"symbol": symbol, "kind": string(kind), "err": err.Error()})
			cached = false
		}

		need := e.opts.ForceRefresh || forced || !cached || entry.Stale(now, e.opts.RefreshDays)
		if !need {
			out[kind] = e.statementFrom(entry, now, true)
			continue
		}

		// Reserve budget before the live call so concurrent workers can
		// never both spend the last unit; the reservation is refunded
		// when nothing billable came back.
		blocked := ""
		if e.stmtLimited.Load() {
			blocked = "provider rate limited"
		} else if !reserve(e.deps.FundBudget, 1) {
			blocked = "budget exhausted"
		}
		if blocked != "" {
			observ.IncCounter("statement_skipped_total", map[string]string{"reason": blocked})
			if cached {
				out[kind] = e.statementFrom(entry, now, true)
			} else {
				addMissing(Missing{Symbol: symbol, Field: statementField(kind), Reason: blocked + ", no cached statement"})
			}
			continue
		}

		if err := e.paceStatements(ctx); err != nil {
			refund(e.deps.FundBudget, 1)
			addMissing(Missing{Symbol: symbol, Field: statementField(kind), Reason: "run cancelled"})
			continue
		}
		payload, st := e.deps.Statements.FetchStatement(ctx, symbol, kind)
		switch st {
		case providers.StatusOK:
			if err := e.deps.Cache.Put(symbol, kind, payload); err != nil {
				observ.Log("cache_put_failed", map[string]any{"symbol": symbol, "kind": string(kind), "err": err.Error()})
			}
			observ.IncCounter("statement_fetched_total", map[string]string{"kind": string(kind)})
			out[kind] = e.statementFrom(fundcache.Entry{Symbol: symbol, Kind: kind, FetchedAt: now, Payload: payload}, now, false)
		case providers.StatusNotFound:
			// The call was made and answered, so the reservation stays
			// spent; the empty result is cached so the symbol is not
			// re-asked every run.
			if err := e.deps.Cache.Put(symbol, kind, nil); err != nil {
				observ.Log("cache_put_failed", map[string]any{"symbol": symbol, "kind": string(kind), "err": err.Error()})
			}
			out[kind] = Statement{FetchedAt: now}
			addMissing(Missing{Symbol: symbol, Field: statementField(kind), Reason: e.deps.Statements.Name() + ":" + string(st)})
		default: // RateLimited, Transient: nothing billable came back
			refund(e.deps.FundBudget, 1)
			if st == providers.StatusRateLimited {
				e.stmtLimited.Store(true)
			}
			if cached {
				out[kind] = e.statementFrom(entry, now, true)
			} else {
				addMissing(Missing{Symbol: symbol, Field: statementField(kind), Reason: e.deps.Statements.Name() + ":" + string(st)})
			}
		}
	}
	return out
}

func (e *Engine) statementFrom(entry fundcache.Entry, now time.Time, fromCache bool) Statement {
	return Statement{
		Latest:    providers.LatestAnnual(entry.Payload, annualReportsKey),
		History:   providers.AnnualSeries(entry.Payload, annualReportsKey, e.opts.HistoryDepth),
		FetchedAt: entry.FetchedAt,
		FromCache: fromCache,
		Stale:     entry.Stale(now, e.opts.RefreshDays),
	}
}

func statementField(kind fundcache.Kind) string {
	return "fundamentals:" + string(kind)
}

// paceStatements spaces live statement calls run-wide. Workers reserve
// a slot under the lock, then wait for it outside; a cancelled context
// releases the wait but the slot stays burned.
func (e *Engine) paceStatements(ctx context.Context) error {
	if e.opts.StatementInterval <= 0 {
		return ctx.Err()
	}
	e.stmtMu.Lock()
	now := time.Now()
	slot := e.stmtNext
	if slot.Before(now) {
		slot = now
	}
	e.stmtNext = slot.Add(e.opts.StatementInterval)
	e.stmtMu.Unlock()

	d := time.Until(slot)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
