// Package budget tracks per-provider call budgets for one run.
package budget

import (
	"sync"

	"github.com/bloomo/eod-engine/internal/observ"
)

// Ledger is a per-run, per-provider counter of remaining permitted calls.
// Remaining never exceeds the daily limit and never goes negative.
type Ledger struct {
	mu        sync.Mutex
	provider  string
	limit     int
	remaining int
}

// NewLedger creates a ledger scoped to one provider for one run.
func NewLedger(provider string, dailyLimit int) *Ledger {
	if dailyLimit < 0 {
		dailyLimit = 0
	}
	return &Ledger{provider: provider, limit: dailyLimit, remaining: dailyLimit}
}

// Provider returns the provider this ledger guards.
func (l *Ledger) Provider() string { return l.provider }

// Limit returns the configured daily limit.
func (l *Ledger) Limit() int { return l.limit }

// Remaining returns the calls still permitted, always >= 0.
func (l *Ledger) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}

// Consume decrements the remaining budget by n, floored at zero.
// It never raises remaining and never fails.
func (l *Ledger) Consume(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remaining -= n
	if l.remaining < 0 {
		l.remaining = 0
	}
	if l.remaining == 0 {
		observ.IncCounter("budget_exhausted_total", map[string]string{"provider": l.provider})
	}
	observ.SetGauge("budget_remaining", float64(l.remaining), map[string]string{"provider": l.provider})
}

// TryConsume atomically reserves n calls: it decrements and reports
// true only when the full amount is available. Check-then-Consume from
// concurrent workers can overspend; callers gating live calls must
// reserve through here instead.
func (l *Ledger) TryConsume(n int) bool {
	if n <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remaining < n {
		return false
	}
	l.remaining -= n
	if l.remaining == 0 {
		observ.IncCounter("budget_exhausted_total", map[string]string{"provider": l.provider})
	}
	observ.SetGauge("budget_remaining", float64(l.remaining), map[string]string{"provider": l.provider})
	return true
}

// Refund returns an unused reservation, capped at the limit.
func (l *Ledger) Refund(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remaining += n
	if l.remaining > l.limit {
		l.remaining = l.limit
	}
	observ.SetGauge("budget_remaining", float64(l.remaining), map[string]string{"provider": l.provider})
}

// restore is used when loading persisted day counters.
func (l *Ledger) restore(used int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if used < 0 {
		used = 0
	}
	l.remaining = l.limit - used
	if l.remaining < 0 {
		l.remaining = 0
	}
}

// used reports how much of the limit has been consumed.
func (l *Ledger) used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit - l.remaining
}
