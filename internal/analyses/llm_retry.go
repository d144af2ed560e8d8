package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"advisor-backend/internal/llm"
	"advisor-backend/internal/shared/telemetry"
)

const llmRetryBaseDelay = 300 * time.Millisecond

// Error fragments that indicate a transient transport or upstream problem.
// Schema failures never match; the workflow stages decide what a bad
// payload means.
var llmTransientMarkers = []string{
	"http status 5",
	"server_error",
	"connection reset",
	"connection refused",
	"connection closed",
	"broken pipe",
	"tls handshake timeout",
	"eof",
}

// retryingLLM retries a single transient failure per call, tagged with the
// job identifiers for log correlation.
type retryingLLM struct {
	base       llm.Client
	requestID  string
	analysisID string
}

func newRetryingLLM(base llm.Client, analysisID, requestID string) llm.Client {
	if base == nil {
		return nil
	}
	return retryingLLM{
		base:       base,
		requestID:  requestID,
		analysisID: analysisID,
	}
}

func (r retryingLLM) Complete(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	resp, err := r.base.Complete(ctx, req)
	if err == nil || !shouldRetryLLM(err) {
		return resp, err
	}

	telemetry.Info("llm.retry", map[string]any{
		"request_id":  r.requestID,
		"analysis_id": r.analysisID,
		"attempt":     1,
		"error":       sanitizeError(err),
	})
	select {
	case <-time.After(llmRetryBaseDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return r.base.Complete(ctx, req)
}

func shouldRetryLLM(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") &&
		(strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	for _, marker := range llmTransientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
