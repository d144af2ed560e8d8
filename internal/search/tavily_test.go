package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTavilySearch(t *testing.T) {
	var gotBody tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Q2 earnings","url":"https://example.com/1","content":"beat estimates"},
			{"title":"SEC filing","url":"https://example.com/2","content":"10-K filed"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := NewTavilyClient("test-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client = client.WithBaseURL(srv.URL)

	results, err := client.Search(context.Background(), "latest news and SEC filings for TEST", 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Content != "beat estimates" {
		t.Fatalf("unexpected content: %q", results[0].Content)
	}
	if gotBody.APIKey != "test-key" || gotBody.MaxResults != 4 {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestTavilySearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[
			{"title":"1","content":"a"},
			{"title":"2","content":"b"},
			{"title":"3","content":"c"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	client, _ := NewTavilyClient("test-key")
	results, err := client.WithBaseURL(srv.URL).Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want capped at 2", len(results))
	}
}

func TestTavilySearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	client, _ := NewTavilyClient("test-key")
	_, err := client.WithBaseURL(srv.URL).Search(context.Background(), "q", 4)
	if err == nil || !strings.Contains(err.Error(), "tavily status 429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewTavilyClientRequiresKey(t *testing.T) {
	if _, err := NewTavilyClient("  "); err == nil {
		t.Fatal("expected missing key error")
	}
}
