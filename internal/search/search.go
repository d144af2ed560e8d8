package search

import (
	"context"
	"errors"
)

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Provider runs free-text web searches.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Unavailable is a Provider stand-in used when no search backend is
// configured. Every call fails.
type Unavailable struct{}

// Search always returns an error.
func (Unavailable) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	return nil, errors.New("search provider not configured")
}

var _ Provider = Unavailable{}
