package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"advisor-backend/internal/llm"
	"advisor-backend/internal/marketdata"
	"advisor-backend/internal/search"
)

type stubMarket struct {
	snap marketdata.Snapshot
	err  error
}

func (s stubMarket) Snapshot(ctx context.Context, ticker string) (marketdata.Snapshot, error) {
	return s.snap, s.err
}

type stubSearch struct {
	results []search.Result
	err     error
}

func (s stubSearch) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	return s.results, s.err
}

// stubLLM answers per contract and counts calls.
type stubLLM struct {
	calls     int32
	responses map[string]string
	err       error
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	resp, ok := s.responses[req.Contract]
	if !ok {
		return nil, errors.New("unexpected contract " + req.Contract)
	}
	return json.RawMessage(resp), nil
}

func float64Ptr(v float64) *float64 { return &v }

func testAnalyzer(market marketdata.Provider, searcher search.Provider, client llm.Client) *Analyzer {
	return &Analyzer{Market: market, Search: searcher, LLM: client}
}

func TestAnalyzerRunEndToEnd(t *testing.T) {
	llmStub := &stubLLM{responses: map[string]string{
		"financial_analysis": `{"key_metrics":{"pe_ratio":21.5},"recent_performance":"solid quarter"}`,
		"market_analysis":    `{"industry_trends":["ai spend"],"competitive_landscape":"duopoly","growth_opportunities":["emerging markets"]}`,
		"final_report": `{
			"company_ticker":"TEST",
			"pros":["strong cash flow"],
			"cons":["customer concentration"],
			"risk_assessment":"moderate",
			"final_recommendation":"Invest",
			"recommendation_summary":"Fundamentals support a position."
		}`,
	}}

	analyzer := testAnalyzer(
		stubMarket{snap: marketdata.Snapshot{MarketCap: float64Ptr(5e9)}},
		stubSearch{results: []search.Result{{Title: "t", Content: "good news"}}},
		llmStub,
	)

	report, err := analyzer.Run(context.Background(), "TEST")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.CompanyTicker != "TEST" {
		t.Fatalf("unexpected ticker: %q", report.CompanyTicker)
	}
	if report.FinalRecommendation != RecommendationInvest {
		t.Fatalf("unexpected recommendation: %q", report.FinalRecommendation)
	}
	if len(report.Pros) != 1 || report.Pros[0] != "strong cash flow" {
		t.Fatalf("pros not carried through: %v", report.Pros)
	}
	if got := atomic.LoadInt32(&llmStub.calls); got != 3 {
		t.Fatalf("llm called %d times, want 3", got)
	}
}

func TestAnalyzerRunCollectionFailureSkipsLLM(t *testing.T) {
	llmStub := &stubLLM{responses: map[string]string{}}
	analyzer := testAnalyzer(
		stubMarket{err: errors.New("fmp profile TEST: unexpected status 500")},
		stubSearch{},
		llmStub,
	)

	_, err := analyzer.Run(context.Background(), "TEST")
	if err == nil || !strings.Contains(err.Error(), "market data") {
		t.Fatalf("expected market data error, got %v", err)
	}
	if atomic.LoadInt32(&llmStub.calls) != 0 {
		t.Fatal("llm was called despite collection failure")
	}
}

func TestAnalyzerRunEmptySnapshotProceeds(t *testing.T) {
	llmStub := &stubLLM{responses: map[string]string{
		"financial_analysis": `{"key_metrics":{},"recent_performance":"no data available"}`,
		"market_analysis":    `{"industry_trends":[],"competitive_landscape":"unknown","growth_opportunities":[]}`,
		"final_report": `{
			"company_ticker":"ZZZZ",
			"pros":[],
			"cons":["no financial data"],
			"risk_assessment":"high",
			"final_recommendation":"Do Not Invest",
			"recommendation_summary":"Insufficient data to justify a position."
		}`,
	}}

	analyzer := testAnalyzer(
		stubMarket{snap: marketdata.Snapshot{}},
		stubSearch{results: []search.Result{{Content: "thin coverage"}}},
		llmStub,
	)

	report, err := analyzer.Run(context.Background(), "ZZZZ")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.FinalRecommendation != RecommendationDoNotInvest {
		t.Fatalf("unexpected recommendation: %q", report.FinalRecommendation)
	}
}

func TestAnalyzerRunSchemaMismatchFails(t *testing.T) {
	llmStub := &stubLLM{responses: map[string]string{
		"financial_analysis": `{"wrong_field":true}`,
		"market_analysis":    `{"industry_trends":[],"competitive_landscape":"c","growth_opportunities":[]}`,
	}}

	analyzer := testAnalyzer(
		stubMarket{snap: marketdata.Snapshot{MarketCap: float64Ptr(1e9)}},
		stubSearch{},
		llmStub,
	)

	_, err := analyzer.Run(context.Background(), "TEST")
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestAnalyzerRunMissingDependencies(t *testing.T) {
	analyzer := &Analyzer{}
	if _, err := analyzer.Run(context.Background(), "TEST"); err == nil {
		t.Fatal("expected dependency error")
	}
}
