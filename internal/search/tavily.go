package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTavilyURL is the Tavily search endpoint.
const DefaultTavilyURL = "https://api.tavily.com/search"

// TavilyClient implements Provider using the Tavily search API.
type TavilyClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewTavilyClient constructs a Tavily search client.
func NewTavilyClient(apiKey string) (*TavilyClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY is required")
	}
	return &TavilyClient{
		apiKey: apiKey,
		apiURL: DefaultTavilyURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// WithBaseURL points the client at a different endpoint. Used in tests.
func (c *TavilyClient) WithBaseURL(url string) *TavilyClient {
	if strings.TrimSpace(url) != "" {
		c.apiURL = url
	}
	return c
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs the query and returns up to maxResults hits.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 4
	}
	payload, err := json.Marshal(tavilyRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tavily read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily status %d", resp.StatusCode)
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("tavily response parse: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Content})
		if len(results) == maxResults {
			break
		}
	}
	return results, nil
}

var _ Provider = (*TavilyClient)(nil)
