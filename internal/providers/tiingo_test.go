package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTiingo(t *testing.T, key string, handler http.HandlerFunc) *Tiingo {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTiingo(TiingoConfig{
		APIKey:             key,
		BaseURL:            srv.URL,
		RateLimitPerMinute: 6000,
		MaxRetries:         2,
		Backoff:            fastRetries,
	})
}

func TestTiingoFetchPrice(t *testing.T) {
	ti := newTestTiingo(t, "tk", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/tiingo/daily/AAPL/prices")
		assert.Equal(t, "tk", r.URL.Query().Get("token"))
		w.Write([]byte(`[
			{"date":"2026-08-27T00:00:00.000Z","close":229.4},
			{"date":"2026-08-28T00:00:00.000Z","close":231.1}
		]`))
	})

	q, st := ti.FetchPrice(context.Background(), "AAPL")
	require.Equal(t, StatusOK, st)
	assert.InDelta(t, 231.1, q.Price, 1e-9, "latest close wins")
	assert.Equal(t, "tiingo", q.Source)
}

func TestTiingoMissingKeyIsRateLimited(t *testing.T) {
	ti := NewTiingo(TiingoConfig{BaseURL: "http://unused.invalid"})
	_, st := ti.FetchPrice(context.Background(), "AAPL")
	assert.Equal(t, StatusRateLimited, st, "no credential fails fast to the next provider")
}

func TestTiingo429(t *testing.T) {
	calls := 0
	ti := newTestTiingo(t, "tk", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, st := ti.FetchPrice(context.Background(), "AAPL")
	assert.Equal(t, StatusRateLimited, st)
	assert.Equal(t, 1, calls)
}

func TestTiingoEmptyResponseIsNotFound(t *testing.T) {
	ti := newTestTiingo(t, "tk", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, st := ti.FetchPrice(context.Background(), "DEAD")
	assert.Equal(t, StatusNotFound, st)
}

func TestTiingoServerErrorsRetryThenTransient(t *testing.T) {
	calls := 0
	ti := newTestTiingo(t, "tk", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, st := ti.FetchPrice(context.Background(), "AAPL")
	assert.Equal(t, StatusTransient, st)
	assert.Equal(t, 2, calls)
}
