package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts LLM providers for structured completions.
type Client interface {
	// Complete sends the request and returns the model's output, which is
	// expected to be a single JSON object.
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// Request captures one structured completion call.
type Request struct {
	// System is the fixed role instruction for the call.
	System string
	// User is the templated message embedding the analysis inputs.
	User string
	// Contract names the output shape for logging and diagnostics.
	Contract string
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	_ = ctx
	_ = req
	return nil, ErrNotImplemented
}
