package fundcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaleBoundary(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", 29 * 24 * time.Hour, false},
		{"just under threshold", 30*24*time.Hour - time.Minute, false},
		{"exactly threshold", 30 * 24 * time.Hour, true},
		{"over threshold", 31 * 24 * time.Hour, true},
		{"future timestamp reads as age zero", -time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{FetchedAt: now.Add(-tt.age)}
			if got := e.Stale(now, 30); got != tt.want {
				t.Errorf("Stale(age=%v, 30) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestFileStorePutGet(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	before := time.Now().UTC()
	payload := json.RawMessage(`{"annualReports":[{"totalRevenue":"1000"}]}`)
	require.NoError(t, s.Put("AAPL", KindIncome, payload))

	e, ok, err := s.Get("AAPL", KindIncome)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AAPL", e.Symbol)
	assert.Equal(t, KindIncome, e.Kind)
	assert.JSONEq(t, string(payload), string(e.Payload))
	assert.False(t, e.FetchedAt.Before(before.Truncate(time.Second)))
}

func TestFileStoreMissingVsNullPayload(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	// Never fetched: absent.
	_, ok, err := s.Get("AAPL", KindBalance)
	require.NoError(t, err)
	assert.False(t, ok)

	// Fetched but provider had nothing: present with nil payload.
	require.NoError(t, s.Put("AAPL", KindBalance, nil))
	e, ok, err := s.Get("AAPL", KindBalance)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, e.Payload)
}

func TestFileStorePathUnsafeSymbols(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	for _, sym := range []string{"BRK.B", "7203/T", "A B", "../evil"} {
		require.NoError(t, s.Put(sym, KindIncome, json.RawMessage(`{}`)))
		_, ok, err := s.Get(sym, KindIncome)
		require.NoError(t, err)
		assert.True(t, ok, "round trip for %q", sym)
	}

	// Nothing escaped the cache directory.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestFileStoreCorruptEntryIsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL_income.json"), []byte("{trunc"), 0o644))

	_, ok, err := s.Get("AAPL", KindIncome)
	require.NoError(t, err)
	assert.False(t, ok, "corrupt entry must read as absent")
}

func TestFileStoreTimestampNeverRegresses(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	s.now = func() time.Time { return future }
	require.NoError(t, s.Put("AAPL", KindIncome, json.RawMessage(`{"v":1}`)))

	s.now = time.Now
	require.NoError(t, s.Put("AAPL", KindIncome, json.RawMessage(`{"v":2}`)))

	e, ok, err := s.Get("AAPL", KindIncome)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, e.FetchedAt.Before(future.UTC().Add(-time.Second)),
		"FetchedAt regressed: %v < %v", e.FetchedAt, future)
	assert.JSONEq(t, `{"v":2}`, string(e.Payload), "payload still overwritten")
}

func TestFileStoreNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("AAPL", KindCashflow, json.RawMessage(`{}`)))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBadgerStorePutGet(t *testing.T) {
	s, err := NewBadgerStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer s.Close()

	payload := json.RawMessage(`{"annualReports":[]}`)
	require.NoError(t, s.Put("BRK.B", KindCashflow, payload))

	e, ok, err := s.Get("BRK.B", KindCashflow)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(e.Payload))

	_, ok, err = s.Get("BRK.B", KindIncome)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open("file", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open("sqlite", t.TempDir())
	assert.Error(t, err)
}
