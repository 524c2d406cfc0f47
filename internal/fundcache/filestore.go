package fundcache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bloomo/eod-engine/internal/observ"
)

// FileStore keeps one JSON document per (symbol, kind) under a data
// directory. Files are deliberately human-readable so operators can
// inspect what the engine thinks it knows.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore opens (creating if needed) a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// path builds the entry file name. Symbols can contain path-unsafe
// characters (BRK.B, 7203/T), so the symbol segment is escaped.
func (s *FileStore) path(symbol string, kind Kind) string {
	return filepath.Join(s.dir, url.PathEscape(symbol)+"_"+string(kind)+".json")
}

func (s *FileStore) Get(symbol string, kind Kind) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(symbol, kind)
}

// read is Get without the lock, for use inside Put.
func (s *FileStore) read(symbol string, kind Kind) (Entry, bool, error) {
	b, err := os.ReadFile(s.path(symbol, kind))
	if os.IsNotExist(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil || e.FetchedAt.IsZero() {
		// Malformed entry: treat as absent so the next refresh repairs it.
		observ.Log("cache_corrupt", map[string]any{
			"symbol": symbol,
			"kind":   string(kind),
			"path":   s.path(symbol, kind),
		})
		observ.IncCounter("cache_corrupt_total", map[string]string{"kind": string(kind)})
		return Entry{}, false, nil
	}
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		// A nil payload marshals as the literal null; fold it back to
		// nil so "recorded empty" round-trips as documented.
		e.Payload = nil
	}
	return e, true, nil
}

func (s *FileStore) Put(symbol string, kind Kind, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	if prev, ok, _ := s.read(symbol, kind); ok && prev.FetchedAt.After(ts) {
		ts = prev.FetchedAt
	}
	e := Entry{Symbol: symbol, Kind: kind, FetchedAt: ts, Payload: payload}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// Write-then-rename so a crash mid-write reads as the old entry,
	// never as a truncated one.
	final := s.path(symbol, kind)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
