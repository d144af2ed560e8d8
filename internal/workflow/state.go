package workflow

// State is the shared analysis state for one workflow run. A fresh State is
// created per run; nothing is shared between concurrent runs.
type State struct {
	Ticker            string
	FinancialData     map[string]any
	NewsText          string
	FinancialAnalysis *FinancialAnalysis
	MarketAnalysis    *MarketAnalysis
	FinalReport       *FinalReport
}

// Update is the partial state produced by one stage. Nil fields leave the
// corresponding State field untouched, so a stage can only write what it
// produced.
type Update struct {
	FinancialData     map[string]any
	NewsText          *string
	FinancialAnalysis *FinancialAnalysis
	MarketAnalysis    *MarketAnalysis
	FinalReport       *FinalReport
}

func (s *State) apply(u Update) {
	if u.FinancialData != nil {
		s.FinancialData = u.FinancialData
	}
	if u.NewsText != nil {
		s.NewsText = *u.NewsText
	}
	if u.FinancialAnalysis != nil {
		s.FinancialAnalysis = u.FinancialAnalysis
	}
	if u.MarketAnalysis != nil {
		s.MarketAnalysis = u.MarketAnalysis
	}
	if u.FinalReport != nil {
		s.FinalReport = u.FinalReport
	}
}
