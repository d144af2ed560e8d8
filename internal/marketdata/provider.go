package marketdata

import "context"

// Snapshot is the current financial picture of a ticker. Fields are pointers
// because providers return partial data for thinly covered or unknown tickers.
type Snapshot struct {
	MarketCap       *float64           `json:"marketCap"`
	TrailingPE      *float64           `json:"trailingPe"`
	ForwardPE       *float64           `json:"forwardPe"`
	RevenueGrowth   *float64           `json:"revenueGrowth"`
	DebtToEquity    *float64           `json:"debtToEquity"`
	RevenueByPeriod map[string]float64 `json:"revenueByPeriod"`
}

// Empty reports whether the provider returned no usable data for the ticker.
func (s Snapshot) Empty() bool {
	return s.MarketCap == nil && s.TrailingPE == nil && s.ForwardPE == nil &&
		s.RevenueGrowth == nil && s.DebtToEquity == nil && len(s.RevenueByPeriod) == 0
}

// Fields returns the snapshot as a metric-name map, with nil for absent
// metrics. This is the shape embedded into analyst prompts and workflow state.
func (s Snapshot) Fields() map[string]any {
	revenue := map[string]float64{}
	if s.RevenueByPeriod != nil {
		revenue = s.RevenueByPeriod
	}
	return map[string]any{
		"market_cap":     deref(s.MarketCap),
		"pe_ratio":       deref(s.TrailingPE),
		"forward_pe":     deref(s.ForwardPE),
		"revenue_growth": deref(s.RevenueGrowth),
		"debt_to_equity": deref(s.DebtToEquity),
		"recent_revenue": revenue,
	}
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Company is a ticker search hit.
type Company struct {
	Name   string `json:"name"`
	Ticker string `json:"tickerSymbol"`
}

// Provider retrieves financial data for a ticker.
type Provider interface {
	Snapshot(ctx context.Context, ticker string) (Snapshot, error)
}

// CompanySearcher looks up companies by free-text query.
type CompanySearcher interface {
	SearchCompanies(ctx context.Context, query string, limit int) ([]Company, error)
}
