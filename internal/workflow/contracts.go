package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Recommendation verdicts allowed in a FinalReport.
const (
	RecommendationInvest      = "Invest"
	RecommendationDoNotInvest = "Do Not Invest"
)

// FinancialAnalysis is the structured output of the financial analyst stage.
type FinancialAnalysis struct {
	KeyMetrics        map[string]any `json:"key_metrics"`
	RecentPerformance string         `json:"recent_performance"`
}

// Validate checks the contract's required fields.
func (a FinancialAnalysis) Validate() error {
	if a.KeyMetrics == nil {
		return fmt.Errorf("financial analysis: key_metrics is required")
	}
	if strings.TrimSpace(a.RecentPerformance) == "" {
		return fmt.Errorf("financial analysis: recent_performance is required")
	}
	return nil
}

// MarketAnalysis is the structured output of the market analyst stage.
type MarketAnalysis struct {
	IndustryTrends       []string `json:"industry_trends"`
	CompetitiveLandscape string   `json:"competitive_landscape"`
	GrowthOpportunities  []string `json:"growth_opportunities"`
}

// Validate checks the contract's required fields.
func (a MarketAnalysis) Validate() error {
	if a.IndustryTrends == nil {
		return fmt.Errorf("market analysis: industry_trends is required")
	}
	if strings.TrimSpace(a.CompetitiveLandscape) == "" {
		return fmt.Errorf("market analysis: competitive_landscape is required")
	}
	if a.GrowthOpportunities == nil {
		return fmt.Errorf("market analysis: growth_opportunities is required")
	}
	return nil
}

// FinalReport is the structured output of the final advisor stage and the
// terminal value of a workflow run.
type FinalReport struct {
	CompanyTicker         string   `json:"company_ticker"`
	Pros                  []string `json:"pros"`
	Cons                  []string `json:"cons"`
	RiskAssessment        string   `json:"risk_assessment"`
	FinalRecommendation   string   `json:"final_recommendation"`
	RecommendationSummary string   `json:"recommendation_summary"`
}

// Validate checks the contract's required fields and the recommendation enum.
func (r FinalReport) Validate() error {
	if strings.TrimSpace(r.CompanyTicker) == "" {
		return fmt.Errorf("final report: company_ticker is required")
	}
	if r.Pros == nil {
		return fmt.Errorf("final report: pros is required")
	}
	if r.Cons == nil {
		return fmt.Errorf("final report: cons is required")
	}
	if strings.TrimSpace(r.RiskAssessment) == "" {
		return fmt.Errorf("final report: risk_assessment is required")
	}
	switch r.FinalRecommendation {
	case RecommendationInvest, RecommendationDoNotInvest:
	default:
		return fmt.Errorf("final report: final_recommendation must be %q or %q, got %q",
			RecommendationInvest, RecommendationDoNotInvest, r.FinalRecommendation)
	}
	if strings.TrimSpace(r.RecommendationSummary) == "" {
		return fmt.Errorf("final report: recommendation_summary is required")
	}
	return nil
}

// DecodeFinancialAnalysis parses and validates raw LLM output.
func DecodeFinancialAnalysis(raw json.RawMessage) (FinancialAnalysis, error) {
	var out FinancialAnalysis
	if err := decodeStrict(raw, &out); err != nil {
		return FinancialAnalysis{}, fmt.Errorf("financial analysis schema: %w", err)
	}
	if err := out.Validate(); err != nil {
		return FinancialAnalysis{}, err
	}
	return out, nil
}

// DecodeMarketAnalysis parses and validates raw LLM output.
func DecodeMarketAnalysis(raw json.RawMessage) (MarketAnalysis, error) {
	var out MarketAnalysis
	if err := decodeStrict(raw, &out); err != nil {
		return MarketAnalysis{}, fmt.Errorf("market analysis schema: %w", err)
	}
	if err := out.Validate(); err != nil {
		return MarketAnalysis{}, err
	}
	return out, nil
}

// DecodeFinalReport parses and validates raw LLM output. The recommendation
// verdict is normalized case-insensitively before the enum check so that
// "INVEST" and "invest" both conform.
func DecodeFinalReport(raw json.RawMessage) (FinalReport, error) {
	var out FinalReport
	if err := decodeStrict(raw, &out); err != nil {
		return FinalReport{}, fmt.Errorf("final report schema: %w", err)
	}
	out.FinalRecommendation = normalizeRecommendation(out.FinalRecommendation)
	if err := out.Validate(); err != nil {
		return FinalReport{}, err
	}
	return out, nil
}

func normalizeRecommendation(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "invest":
		return RecommendationInvest
	case "do not invest":
		return RecommendationDoNotInvest
	default:
		return strings.TrimSpace(raw)
	}
}

// decodeStrict rejects unknown fields so malformed LLM output fails closed
// instead of being silently coerced.
func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
