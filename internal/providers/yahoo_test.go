package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *Yahoo {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewYahoo(YahooConfig{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		Backoff:    fastRetries,
	})
}

func quoteJSON(pairs map[string]float64) string {
	var results []string
	for sym, price := range pairs {
		results = append(results, fmt.Sprintf(
			`{"symbol":%q,"regularMarketPrice":%v,"regularMarketTime":1756300000}`, sym, price))
	}
	return `{"quoteResponse":{"result":[` + strings.Join(results, ",") + `]}}`
}

func TestYahooBatchPartialResponse(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		// DEAD is requested but absent from the response.
		w.Write([]byte(quoteJSON(map[string]float64{"AAPL": 231.5, "BRK-B": 468.2})))
	})

	quotes, st := y.FetchPrices(context.Background(), []string{"AAPL", "BRK.B", "DEAD"})
	require.Equal(t, StatusOK, st, "a batch partial-failure never fails the whole batch")

	require.Contains(t, quotes, "AAPL")
	assert.InDelta(t, 231.5, quotes["AAPL"].Price, 1e-9)
	assert.Equal(t, "yahoo", quotes["AAPL"].Source)

	// BRK.B went over the wire as BRK-B and came back under our ticker.
	require.Contains(t, quotes, "BRK.B")
	assert.InDelta(t, 468.2, quotes["BRK.B"].Price, 1e-9)

	_, ok := quotes["DEAD"]
	assert.False(t, ok, "absent symbol is NotFound for that symbol only")
}

func TestYahooSymbolNormalizationOnWire(t *testing.T) {
	var requested string
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Query().Get("symbols")
		w.Write([]byte(quoteJSON(map[string]float64{"BRK-B": 468.2})))
	})

	y.FetchPrices(context.Background(), []string{"BRK.B"})
	assert.Equal(t, "BRK-B", requested)
}

func TestYahooBatchChunking(t *testing.T) {
	var batches []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batches = append(batches, r.URL.Query().Get("symbols"))
		w.Write([]byte(quoteJSON(nil)))
	}))
	defer srv.Close()

	y := NewYahoo(YahooConfig{BaseURL: srv.URL, BatchSize: 2, MaxRetries: 1, Backoff: fastRetries})
	y.FetchPrices(context.Background(), []string{"A", "B", "C", "D", "E"})

	require.Len(t, batches, 3)
	assert.Equal(t, "A,B", batches[0])
	assert.Equal(t, "C,D", batches[1])
	assert.Equal(t, "E", batches[2])
}

func TestYahooRateLimited(t *testing.T) {
	calls := 0
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("Too Many Requests"))
	})

	quotes, st := y.FetchPrices(context.Background(), []string{"AAPL"})
	assert.Equal(t, StatusRateLimited, st)
	assert.Empty(t, quotes)
	assert.Equal(t, 1, calls, "429 must not be retried against the same provider")
}

func TestYahooFetchFX(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JPY=X", r.URL.Query().Get("symbols"))
		w.Write([]byte(quoteJSON(map[string]float64{"JPY=X": 148.35})))
	})

	fx, st := y.FetchFX(context.Background(), "JPY=X")
	require.Equal(t, StatusOK, st)
	assert.InDelta(t, 148.35, fx, 1e-9)
}

func TestYahooLightInfo(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v10/finance/quoteSummary/AAPL")
		w.Write([]byte(`{"quoteSummary":{"result":[{"summaryDetail":{
			"trailingPE":{"raw":29.1},
			"dividendYield":{"raw":0.0044},
			"priceToSalesTrailing12Months":{"raw":7.2}}}]}}`))
	})

	info, st := y.FetchLightInfo(context.Background(), "AAPL")
	require.Equal(t, StatusOK, st)
	require.NotNil(t, info.PE)
	assert.InDelta(t, 29.1, *info.PE, 1e-9)
	require.NotNil(t, info.DividendYield)
	assert.InDelta(t, 0.44, *info.DividendYield, 1e-6)
}

func TestYahooNextEvent(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quoteSummary":{"result":[{"calendarEvents":{"earnings":{
			"earningsDate":[{"fmt":"2026-10-29"}]}}}]}}`))
	})

	date, st := y.FetchNextEvent(context.Background(), "AAPL")
	require.Equal(t, StatusOK, st)
	assert.Equal(t, "2026-10-29", date)
}

func TestYahooNextEventAbsent(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quoteSummary":{"result":[{"calendarEvents":{"earnings":{"earningsDate":[]}}}]}}`))
	})

	_, st := y.FetchNextEvent(context.Background(), "AAPL")
	assert.Equal(t, StatusNotFound, st)
}

func TestLightInfoMerge(t *testing.T) {
	pe, ps := 10.0, 2.0
	primary := LightInfo{PE: &pe}
	other := 99.0
	primary.Merge(LightInfo{PE: &other, PS: &ps})

	assert.Equal(t, 10.0, *primary.PE, "existing values are not overwritten")
	assert.Equal(t, 2.0, *primary.PS, "gaps are filled")
	assert.Nil(t, primary.DividendYield)
}

func TestYahooPaceSerializesConcurrentCallers(t *testing.T) {
	y := NewYahoo(YahooConfig{MinIntervalMs: 30})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, y.pace(context.Background()))
		}()
	}
	wg.Wait()

	// Three callers racing for slots: the first is immediate, the other
	// two each wait a full interval behind the one before.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("three paced calls finished in %v, want at least 60ms", elapsed)
	}
}
