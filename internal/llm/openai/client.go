package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"advisor-backend/internal/llm"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// Client implements llm.Client using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		apiURL: defaultAPIURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// WithBaseURL points the client at a different completions endpoint. Used in tests.
func (c *Client) WithBaseURL(url string) *Client {
	if strings.TrimSpace(url) != "" {
		c.apiURL = url
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a structured completion request and returns the raw JSON output.
// If the first response is not valid JSON, one repair round-trip is attempted.
func (c *Client) Complete(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	messages := []chatMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	}

	raw, err := c.completeOnce(ctx, req.Contract, messages)
	if err != nil {
		return nil, err
	}
	if json.Valid(raw) {
		return raw, nil
	}

	fixMessages := append(messages, chatMessage{
		Role:    "user",
		Content: "The previous output was not valid JSON. Return the same content as a single valid JSON object and nothing else:\n\n" + string(raw),
	})
	raw, err = c.completeOnce(ctx, req.Contract, fixMessages)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON from OpenAI")
	}
	return raw, nil
}

func (c *Client) completeOnce(ctx context.Context, contract string, messages []chatMessage) (json.RawMessage, error) {
	temp := float32(0)
	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: responseFormat{
			Type: "json_object",
		},
	}
	reqBody.Temperature = &temp
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, fmt.Errorf("openai request timeout: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("openai response empty content")
	}
	if parsed.Usage != nil {
		log.Printf("llm usage model=%s contract=%s prompt_tokens=%d completion_tokens=%d total_tokens=%d",
			c.model, contract, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, parsed.Usage.TotalTokens)
	}
	return json.RawMessage(content), nil
}

var _ llm.Client = (*Client)(nil)
