package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"advisor-backend/internal/llm"
)

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":    "chatcmpl-1",
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

func TestCompleteReturnsRawJSON(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(chatReply(`{"recommendation":"Invest"}`)))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient("test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client = client.WithBaseURL(srv.URL)

	raw, err := client.Complete(context.Background(), llm.Request{
		System:   "You are an advisor.",
		User:     "Analyze TEST.",
		Contract: "final_report",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if string(raw) != `{"recommendation":"Invest"}` {
		t.Fatalf("unexpected output: %s", raw)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization header: %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Fatalf("model: %q", gotBody.Model)
	}
	if gotBody.ResponseFormat.Type != "json_object" {
		t.Fatalf("response format: %q", gotBody.ResponseFormat.Type)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("messages: %+v", gotBody.Messages)
	}
}

func TestCompleteRepairsInvalidJSON(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(chatReply("Sure! Here is the JSON: {\"ok\":true}")))
			return
		}
		_, _ = w.Write([]byte(chatReply(`{"ok":true}`)))
	}))
	t.Cleanup(srv.Close)

	client, _ := NewClient("test-key", "gpt-4o-mini")
	raw, err := client.WithBaseURL(srv.URL).Complete(context.Background(), llm.Request{Contract: "financial_analysis"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a repair round trip, got %d calls", calls)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("unexpected output: %s", raw)
	}
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	}))
	t.Cleanup(srv.Close)

	client, _ := NewClient("test-key", "gpt-4o-mini")
	_, err := client.WithBaseURL(srv.URL).Complete(context.Background(), llm.Request{Contract: "market_analysis"})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[]}`))
	}))
	t.Cleanup(srv.Close)

	client, _ := NewClient("test-key", "gpt-4o-mini")
	_, err := client.WithBaseURL(srv.URL).Complete(context.Background(), llm.Request{Contract: "final_report"})
	if err == nil || !strings.Contains(err.Error(), "missing choices") {
		t.Fatalf("expected missing choices error, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := NewClient("test-key", " "); err == nil {
		t.Fatal("expected missing model error")
	}
}
