package companies

import (
	"context"
	"errors"
	"strings"

	"advisor-backend/internal/marketdata"
)

const defaultSearchLimit = 10

var ErrQueryRequired = errors.New("query is required")

// Service looks up companies by name or ticker fragment.
type Service struct {
	Searcher marketdata.CompanySearcher
}

// NewService constructs a Service.
func NewService(searcher marketdata.CompanySearcher) *Service {
	return &Service{Searcher: searcher}
}

// Search returns matching companies for a free-text query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]marketdata.Company, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}
	if limit <= 0 || limit > 50 {
		limit = defaultSearchLimit
	}
	if s.Searcher == nil {
		return []marketdata.Company{}, nil
	}
	results, err := s.Searcher.SearchCompanies(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []marketdata.Company{}
	}
	return results, nil
}
