package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchTickerStatsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("category") != "spot" {
			t.Fatalf("category query missing: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"retCode": 0,
			"retMsg":  "OK",
			"result": map[string]any{
				"category": "spot",
				"list": []map[string]string{
					{"symbol": "BTCUSDT", "lastPrice": "43500.5", "turnover24h": "1200000000"},
					{"symbol": "ETHUSDT", "lastPrice": "2300", "turnover24h": "bogus"},
				},
			},
		})
	}))
	defer srv.Close()

	f := NewTickers(TickersOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
	stats, err := f.FetchTickerStats(context.Background(), "spot")
	if err != nil {
		t.Fatalf("FetchTickerStats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("unparseable turnover should be skipped, got %d stats", len(stats))
	}
	if stats[0].Symbol != "BTCUSDT" || stats[0].Turnover24h.InexactFloat64() != 1200000000 {
		t.Fatalf("unexpected stat: %#v", stats[0])
	}
	if stats[0].LastPrice.InexactFloat64() != 43500.5 {
		t.Fatalf("last price wrong: %s", stats[0].LastPrice)
	}
}

func TestFetchTickerStatsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"retCode": 10001, "retMsg": "params error"})
	}))
	defer srv.Close()

	f := NewTickers(TickersOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.FetchTickerStats(context.Background(), "spot"); err == nil {
		t.Fatal("non-zero retCode should error")
	}
}

func TestFetchTickerStatsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewTickers(TickersOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.FetchTickerStats(context.Background(), "linear"); err == nil {
		t.Fatal("HTTP 502 should error")
	}
}

func TestFetchTickerStatsRequiresCategory(t *testing.T) {
	f := NewTickers(TickersOptions{}, noopLogger())
	if _, err := f.FetchTickerStats(context.Background(), ""); err == nil {
		t.Fatal("empty category should error")
	}
}
