package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFMPTestServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") == "" {
			t.Errorf("missing apikey on %s", r.URL.Path)
		}
		for prefix, body := range responses {
			if strings.HasPrefix(r.URL.Path, prefix) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
				return
			}
		}
		http.NotFound(w, r)
	}))
}

func TestFMPSnapshot(t *testing.T) {
	srv := newFMPTestServer(t, map[string]string{
		"/profile/":    `[{"symbol":"TEST","mktCap":5000000000,"companyName":"Test Corp"}]`,
		"/ratios-ttm/": `[{"peRatioTTM":21.5,"debtEquityRatioTTM":0.8,"priceEarningsRatioTTM":19.2}]`,
		"/income-statement/": `[
			{"date":"2025-12-31","revenue":1200},
			{"date":"2024-12-31","revenue":1000},
			{"date":"2023-12-31","revenue":900}
		]`,
	})
	t.Cleanup(srv.Close)

	client := NewFMPClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	snap, err := client.Snapshot(context.Background(), "TEST")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if snap.MarketCap == nil || *snap.MarketCap != 5000000000 {
		t.Fatalf("market cap: %v", snap.MarketCap)
	}
	if snap.TrailingPE == nil || *snap.TrailingPE != 21.5 {
		t.Fatalf("trailing pe: %v", snap.TrailingPE)
	}
	if snap.DebtToEquity == nil || *snap.DebtToEquity != 0.8 {
		t.Fatalf("debt to equity: %v", snap.DebtToEquity)
	}
	if snap.RevenueGrowth == nil {
		t.Fatal("revenue growth missing")
	}
	if got := *snap.RevenueGrowth; got < 0.19 || got > 0.21 {
		t.Fatalf("revenue growth = %v, want ~0.20", got)
	}
	if len(snap.RevenueByPeriod) != 3 {
		t.Fatalf("revenue periods: %v", snap.RevenueByPeriod)
	}
	if snap.Empty() {
		t.Fatal("snapshot reported empty")
	}
}

func TestFMPSnapshotUnknownTickerEmpty(t *testing.T) {
	srv := newFMPTestServer(t, map[string]string{
		"/profile/":          `[]`,
		"/ratios-ttm/":       `[]`,
		"/income-statement/": `[]`,
	})
	t.Cleanup(srv.Close)

	client := NewFMPClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	snap, err := client.Snapshot(context.Background(), "ZZZZ")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Empty() {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestFMPSnapshotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewFMPClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	_, err := client.Snapshot(context.Background(), "TEST")
	if err == nil || !strings.Contains(err.Error(), "unexpected status 502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestFMPSearchCompanies(t *testing.T) {
	srv := newFMPTestServer(t, map[string]string{
		"/search-ticker": `[{"symbol":"TSLA","name":"Tesla, Inc."},{"symbol":"TXN","name":"Texas Instruments"}]`,
	})
	t.Cleanup(srv.Close)

	client := NewFMPClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	companies, err := client.SearchCompanies(context.Background(), "te", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(companies) != 2 {
		t.Fatalf("got %d companies", len(companies))
	}
	if companies[0].Ticker != "TSLA" || companies[0].Name != "Tesla, Inc." {
		t.Fatalf("unexpected first hit: %+v", companies[0])
	}
}

func TestSnapshotFields(t *testing.T) {
	mc := 1e9
	snap := Snapshot{MarketCap: &mc}
	fields := snap.Fields()
	if fields["market_cap"] != mc {
		t.Fatalf("market_cap = %v", fields["market_cap"])
	}
	if fields["pe_ratio"] != nil {
		t.Fatalf("absent metric should map to nil, got %v", fields["pe_ratio"])
	}
	if _, ok := fields["recent_revenue"].(map[string]float64); !ok {
		t.Fatalf("recent_revenue shape: %T", fields["recent_revenue"])
	}
}
