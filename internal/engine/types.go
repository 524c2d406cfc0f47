package engine

import (
	"encoding/json"
	"time"

	"github.com/bloomo/eod-engine/internal/fundcache"
)

// Row is the resolved record for one ticker, handed to the reporting
// layer. Nil pointers mean the field could not be resolved this run and
// render as N/A downstream.
type Row struct {
	Ticker   string
	Name     string
	Sector   string
	Industry string

	Price       *float64
	PriceSource string
	PriceAsOf   time.Time
	PriceJPY    *float64

	PE            *float64
	PS            *float64
	DividendYield *float64
	NextEvent     string

	Fundamentals map[fundcache.Kind]Statement
}

// Statement is one resolved statement kind for a row: the latest annual
// report, up to historyDepth older ones, and where the data came from.
type Statement struct {
	Latest    json.RawMessage
	History   []json.RawMessage
	FetchedAt time.Time
	FromCache bool
	Stale     bool
}

// Missing enumerates one unresolved field. The run's outer contract is
// best-effort completion plus this structured report; nothing is
// silently dropped.
type Missing struct {
	Symbol string
	Field  string
	Reason string
}

// Snapshot is one run's full output.
type Snapshot struct {
	Date     time.Time
	FX       *float64
	FXSource string
	Rows     []Row
	Missing  []Missing

	// Rotation audit: which symbols were force-refreshed today.
	Rotated []string
}
