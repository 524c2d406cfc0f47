// Package backoff implements the exponential-backoff policy shared by all
// provider adapters.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy computes retry delays: min(Cap, Base*2^attempt) plus uniform
// jitter in [0, Jitter). With Jitter zero the policy is deterministic,
// which is how tests run it.
type Policy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration
}

// Default matches the production values used against free-tier APIs.
var Default = Policy{
	Base:   1 * time.Second,
	Cap:    16 * time.Second,
	Jitter: 500 * time.Millisecond,
}

// Delay returns the backoff duration for the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// Sleep blocks for Delay(attempt) or until ctx is done. Sleeping here
// never blocks other adapters; each runs its own retry loop.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
