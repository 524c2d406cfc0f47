package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStooq(t *testing.T, handler http.HandlerFunc) *Stooq {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStooq(StooqConfig{BaseURL: srv.URL})
}

func TestStooqFetchPrice(t *testing.T) {
	s := newTestStooq(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "brk-b.us", r.URL.Query().Get("s"))
		w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nBRK-B.US,2026-08-28,22:00:11,465.0,470.1,464.2,468.25,3418200\n"))
	})

	q, st := s.FetchPrice(context.Background(), "BRK.B")
	require.Equal(t, StatusOK, st)
	assert.InDelta(t, 468.25, q.Price, 1e-9)
	assert.Equal(t, "BRK.B", q.Symbol)
	assert.Equal(t, "stooq", q.Source)
	assert.Equal(t, "2026-08-28", q.AsOf.Format("2006-01-02"))
}

func TestStooqNoData(t *testing.T) {
	s := newTestStooq(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nZZZZ.US,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n"))
	})

	_, st := s.FetchPrice(context.Background(), "ZZZZ")
	assert.Equal(t, StatusNotFound, st)
}

func TestStooqFX(t *testing.T) {
	s := newTestStooq(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "usdjpy", r.URL.Query().Get("s"))
		w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nUSDJPY,2026-08-28,21:59:57,148.1,148.6,147.9,148.31,0\n"))
	})

	fx, st := s.FetchFX(context.Background(), "USDJPY")
	require.Equal(t, StatusOK, st)
	assert.InDelta(t, 148.31, fx, 1e-9)
}

func TestStooqSymbolMapping(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AAPL", "aapl.us"},
		{"BRK.B", "brk-b.us"},
		{"BF.B", "bf-b.us"},
	}
	for _, tt := range tests {
		if got := StooqSymbol(tt.in); got != tt.want {
			t.Errorf("StooqSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
