package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"advisor-backend/internal/llm"
	"advisor-backend/internal/marketdata"
	"advisor-backend/internal/search"
	"advisor-backend/internal/shared/telemetry"
)

// maxNewsResults caps the web search hits folded into the news text.
const maxNewsResults = 4

// Stage names in the analysis graph.
const (
	StageDataCollection   = "data_collection"
	StageFinancialAnalyst = "financial_analyst"
	StageMarketAnalyst    = "market_analyst"
	StageFinalAdvisor     = "final_advisor"
)

// Analyzer runs the four-stage investment analysis workflow. All external
// clients are injected so tests can substitute stubs.
type Analyzer struct {
	Market marketdata.Provider
	Search search.Provider
	LLM    llm.Client
}

// Run executes the analysis graph for the ticker and returns the final
// report. Any stage error aborts the run; no partial report is returned.
func (a *Analyzer) Run(ctx context.Context, ticker string) (*FinalReport, error) {
	if a.Market == nil || a.Search == nil || a.LLM == nil {
		return nil, errors.New("analyzer: missing provider dependencies")
	}

	graph, err := NewGraph(
		Node{Name: StageDataCollection, Run: a.collectData},
		Node{Name: StageFinancialAnalyst, Needs: []string{StageDataCollection}, Run: a.analyzeFinancials},
		Node{Name: StageMarketAnalyst, Needs: []string{StageDataCollection}, Run: a.analyzeMarket},
		Node{Name: StageFinalAdvisor, Needs: []string{StageFinancialAnalyst, StageMarketAnalyst}, Run: a.advise},
	)
	if err != nil {
		return nil, err
	}

	state := &State{Ticker: ticker}
	if err := graph.Run(ctx, state); err != nil {
		return nil, err
	}
	if state.FinalReport == nil {
		return nil, errors.New("workflow finished without a final report")
	}
	return state.FinalReport, nil
}

// collectData fetches the financial snapshot and recent news for the ticker.
// An empty snapshot for an unknown ticker is tolerated; transport errors are
// not.
func (a *Analyzer) collectData(ctx context.Context, s State) (Update, error) {
	snap, err := a.Market.Snapshot(ctx, s.Ticker)
	if err != nil {
		return Update{}, fmt.Errorf("market data: %w", err)
	}
	if snap.Empty() {
		telemetry.Info("workflow.stage", map[string]any{
			"stage":  StageDataCollection,
			"ticker": s.Ticker,
			"note":   "empty market data, proceeding",
		})
	}

	results, err := a.Search.Search(ctx, "latest news and SEC filings for "+s.Ticker, maxNewsResults)
	if err != nil {
		return Update{}, fmt.Errorf("news search: %w", err)
	}
	bodies := make([]string, 0, len(results))
	for _, r := range results {
		bodies = append(bodies, r.Content)
	}
	news := strings.Join(bodies, "\n")

	return Update{FinancialData: snap.Fields(), NewsText: &news}, nil
}

func (a *Analyzer) analyzeFinancials(ctx context.Context, s State) (Update, error) {
	financialJSON, err := json.Marshal(s.FinancialData)
	if err != nil {
		return Update{}, fmt.Errorf("encode financial data: %w", err)
	}

	raw, err := a.LLM.Complete(ctx, llm.Request{
		System: "You are an expert financial analyst. Analyze the provided data and generate a structured financial report. " +
			"Respond with a single JSON object with exactly these fields: " +
			`"key_metrics" (object mapping metric names to values) and "recent_performance" (string summary).`,
		User: fmt.Sprintf("Here is the financial data for %s:\n\n%s\n\nAnd recent news/filings:\n\n%s\n\nPlease provide your analysis.",
			s.Ticker, financialJSON, s.NewsText),
		Contract: "financial_analysis",
	})
	if err != nil {
		return Update{}, err
	}

	analysis, err := DecodeFinancialAnalysis(raw)
	if err != nil {
		return Update{}, err
	}
	return Update{FinancialAnalysis: &analysis}, nil
}

func (a *Analyzer) analyzeMarket(ctx context.Context, s State) (Update, error) {
	raw, err := a.LLM.Complete(ctx, llm.Request{
		System: "You are an expert market analyst. Analyze the company's market position based on recent news and trends. " +
			"Respond with a single JSON object with exactly these fields: " +
			`"industry_trends" (array of strings), "competitive_landscape" (string), and "growth_opportunities" (array of strings).`,
		User: fmt.Sprintf("Company: %s\n\nRecent News:\n\n%s\n\nPlease provide a structured market analysis.",
			s.Ticker, s.NewsText),
		Contract: "market_analysis",
	})
	if err != nil {
		return Update{}, err
	}

	analysis, err := DecodeMarketAnalysis(raw)
	if err != nil {
		return Update{}, err
	}
	return Update{MarketAnalysis: &analysis}, nil
}

// advise joins both analyst results into the final report. The graph only
// schedules it after both analyst stages have completed.
func (a *Analyzer) advise(ctx context.Context, s State) (Update, error) {
	if s.FinancialAnalysis == nil || s.MarketAnalysis == nil {
		return Update{}, errors.New("final advisor scheduled before both analyses completed")
	}

	metricsJSON, err := json.Marshal(s.FinancialAnalysis.KeyMetrics)
	if err != nil {
		return Update{}, fmt.Errorf("encode key metrics: %w", err)
	}

	raw, err := a.LLM.Complete(ctx, llm.Request{
		System: "You are a senior investment advisor. Synthesize the financial and market analyses to create a final investment report with a clear recommendation. " +
			"Respond with a single JSON object with exactly these fields: " +
			`"company_ticker" (string), "pros" (array of strings), "cons" (array of strings), "risk_assessment" (string), ` +
			`"final_recommendation" ("Invest" or "Do Not Invest"), and "recommendation_summary" (1-2 sentence string).`,
		User: fmt.Sprintf("Company Ticker: %s\nFinancial Analysis:\n- Key Metrics: %s\n- Performance Summary: %s\nMarket Analysis:\n- Industry Trends: %s\n- Competitive Landscape: %s\nBased on all this information, generate the final report.",
			s.Ticker, metricsJSON, s.FinancialAnalysis.RecentPerformance,
			strings.Join(s.MarketAnalysis.IndustryTrends, "; "), s.MarketAnalysis.CompetitiveLandscape),
		Contract: "final_report",
	})
	if err != nil {
		return Update{}, err
	}

	report, err := DecodeFinalReport(raw)
	if err != nil {
		return Update{}, err
	}
	return Update{FinalReport: &report}, nil
}
