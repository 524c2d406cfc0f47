package fundcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bloomo/eod-engine/internal/observ"
)

// BadgerStore backs the cache with an embedded Badger KV store. Same
// contract as FileStore; preferred when the universe is large enough
// that thousands of loose JSON files become operationally annoying.
type BadgerStore struct {
	store *badgerhold.Store
	now   func() time.Time
}

// NewBadgerStore opens (creating if needed) a Badger-backed store at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil
	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerStore{store: store, now: time.Now}, nil
}

func cacheKey(symbol string, kind Kind) string {
	return symbol + "|" + string(kind)
}

func (s *BadgerStore) Get(symbol string, kind Kind) (Entry, bool, error) {
	var e Entry
	err := s.store.Get(cacheKey(symbol, kind), &e)
	if err == badgerhold.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		// Undecodable record: same treatment as a corrupt cache file.
		observ.Log("cache_corrupt", map[string]any{
			"symbol": symbol,
			"kind":   string(kind),
			"error":  err.Error(),
		})
		observ.IncCounter("cache_corrupt_total", map[string]string{"kind": string(kind)})
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *BadgerStore) Put(symbol string, kind Kind, payload json.RawMessage) error {
	ts := s.now().UTC()
	if prev, ok, _ := s.Get(symbol, kind); ok && prev.FetchedAt.After(ts) {
		ts = prev.FetchedAt
	}
	e := Entry{Symbol: symbol, Kind: kind, FetchedAt: ts, Payload: payload}
	if err := s.store.Upsert(cacheKey(symbol, kind), &e); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.store.Close()
}

// Open selects a backend by name; "file" (default) or "badger".
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dir)
	case "badger":
		return NewBadgerStore(dir)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
