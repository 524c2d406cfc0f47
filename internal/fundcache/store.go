// Package fundcache is the durable statement cache: one entry per
// (symbol, statement kind), surviving between daily runs.
package fundcache

import (
	"encoding/json"
	"time"
)

// Kind identifies a fundamental statement kind.
type Kind string

const (
	KindIncome   Kind = "income"
	KindBalance  Kind = "balance"
	KindCashflow Kind = "cashflow"
)

// Kinds lists every statement kind in refresh order.
var Kinds = []Kind{KindIncome, KindBalance, KindCashflow}

// Entry is one cached statement. A nil Payload records "provider
// attempted but returned no data" and is distinct from the entry being
// absent entirely.
type Entry struct {
	Symbol    string          `json:"symbol"`
	Kind      Kind            `json:"kind"`
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// AgeDays returns the whole days elapsed since the entry was fetched.
func (e Entry) AgeDays(now time.Time) int {
	if now.Before(e.FetchedAt) {
		return 0
	}
	return int(now.Sub(e.FetchedAt).Hours() / 24)
}

// Stale reports whether the entry has reached the refresh threshold.
// An entry aged exactly refreshDays is stale.
func (e Entry) Stale(now time.Time, refreshDays int) bool {
	return e.AgeDays(now) >= refreshDays
}

// Store is the durable key/value backend. Implementations must make
// writes atomic: a crash mid-Put leaves the previous entry (or absence)
// intact, never a truncated one.
type Store interface {
	// Get returns the entry and whether it exists. A corrupt persisted
	// entry reads as absent.
	Get(symbol string, kind Kind) (Entry, bool, error)
	// Put overwrites the entry, stamping the current time. The stamped
	// time never regresses below an existing entry's.
	Put(symbol string, kind Kind, payload json.RawMessage) error
	Close() error
}
