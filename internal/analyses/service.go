package analyses

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"advisor-backend/internal/llm"
	"advisor-backend/internal/marketdata"
	"advisor-backend/internal/queue"
	"advisor-backend/internal/search"
	"advisor-backend/internal/shared/metrics"
	"advisor-backend/internal/shared/telemetry"
	"advisor-backend/internal/workflow"
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// WorkflowRunner produces a final report for a ticker.
type WorkflowRunner interface {
	Run(ctx context.Context, ticker string) (*workflow.FinalReport, error)
}

// Service contains business logic for analysis jobs. Jobs are created
// pending and handed off either to the queue (worker process picks them
// up) or to the in-process dispatcher.
type Service struct {
	Repo       Repo
	Queue      queue.Client
	Dispatcher *Dispatcher

	Market marketdata.Provider
	Search search.Provider
	LLM    llm.Client

	// Runner overrides the per-job analyzer when set. Used by tests.
	Runner WorkflowRunner
}

// Submit validates the ticker, creates a pending analysis, and schedules
// the workflow.
func (s *Service) Submit(ctx context.Context, ticker, userID string) (Analysis, error) {
	if userID == "" {
		return Analysis{}, errors.New("userID is required")
	}
	normalized, err := NormalizeTicker(ticker)
	if err != nil {
		return Analysis{}, err
	}

	now := time.Now().UTC()
	analysis := Analysis{
		ID:        uuid.NewString(),
		Ticker:    normalized,
		UserID:    userID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		return Analysis{}, err
	}

	requestID := requestIDFromContext(ctx)
	telemetry.Info("analysis.submitted", map[string]any{
		"request_id":  requestID,
		"user_id":     userID,
		"analysis_id": analysis.ID,
		"ticker":      normalized,
	})

	if s.Queue != nil {
		msg := queue.NewMessage(analysis.ID, normalized, requestID)
		if err := s.Queue.Send(ctx, msg); err != nil {
			telemetry.Error("analysis.enqueue_failed", map[string]any{
				"request_id":  requestID,
				"analysis_id": analysis.ID,
				"error":       sanitizeError(err),
			})
			return Analysis{}, fmt.Errorf("enqueue analysis: %w", err)
		}
		return analysis, nil
	}

	jobCtx := backgroundWithRequestID(ctx)
	if s.Dispatcher != nil {
		s.Dispatcher.Dispatch(jobCtx, func(ctx context.Context) {
			s.ProcessAnalysis(ctx, analysis.ID)
		})
	} else {
		go s.ProcessAnalysis(jobCtx, analysis.ID)
	}
	return analysis, nil
}

// Get returns an analysis by ID.
func (s *Service) Get(ctx context.Context, analysisID string) (Analysis, error) {
	if analysisID == "" {
		return Analysis{}, errors.New("analysisID is required")
	}
	return s.Repo.GetByID(ctx, analysisID)
}

// List returns analyses for a user ordered newest-first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// NormalizeTicker uppercases and validates a ticker symbol.
func NormalizeTicker(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(normalized) {
		return "", ErrInvalidTicker
	}
	return normalized, nil
}

// ProcessAnalysis runs the full workflow for one job and records the
// outcome. Safe to call more than once per job: a job that already
// reached a terminal status is left untouched and nil is returned.
func (s *Service) ProcessAnalysis(ctx context.Context, analysisID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.failAnalysis(ctx, analysisID, "", err, nil)
		}
	}()

	startedAt := time.Now().UTC()
	if err := s.Repo.MarkRunning(ctx, analysisID, startedAt); err != nil {
		if errors.Is(err, ErrFinalized) {
			telemetry.Info("analysis.skip_finalized", map[string]any{
				"request_id":  requestIDFromContext(ctx),
				"analysis_id": analysisID,
			})
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}
		wrapped := fmt.Errorf("set running failed: %w", err)
		s.failAnalysis(ctx, analysisID, "", wrapped, &startedAt)
		return wrapped
	}

	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		wrapped := fmt.Errorf("analysis lookup: %w", err)
		s.failAnalysis(ctx, analysisID, "", wrapped, &startedAt)
		return wrapped
	}

	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           analysis.UserID,
		"analysis_id":       analysis.ID,
		"ticker":            analysis.Ticker,
		"status":            StatusRunning,
		"status_transition": "pending->running",
	})

	runner := s.runnerFor(analysis.ID, requestIDFromContext(ctx))
	if runner == nil {
		err := errors.New("missing workflow dependencies")
		s.failAnalysis(ctx, analysisID, analysis.UserID, err, &startedAt)
		return err
	}

	report, err := runner.Run(ctx, analysis.Ticker)
	if err != nil {
		s.failAnalysis(ctx, analysisID, analysis.UserID, err, &startedAt)
		return err
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.Complete(ctx, analysisID, report, completedAt); err != nil {
		if errors.Is(err, ErrFinalized) {
			telemetry.Info("analysis.skip_finalized", map[string]any{
				"request_id":  requestIDFromContext(ctx),
				"analysis_id": analysisID,
			})
			return nil
		}
		wrapped := fmt.Errorf("set analysis result failed: %w", err)
		s.failAnalysis(ctx, analysisID, analysis.UserID, wrapped, &startedAt)
		return wrapped
	}

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           analysis.UserID,
		"analysis_id":       analysis.ID,
		"ticker":            analysis.Ticker,
		"status":            StatusCompleted,
		"status_transition": "running->completed",
		"recommendation":    report.FinalRecommendation,
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
	return nil
}

func (s *Service) runnerFor(analysisID, requestID string) WorkflowRunner {
	if s.Runner != nil {
		return s.Runner
	}
	if s.Market == nil || s.Search == nil || s.LLM == nil {
		return nil
	}
	return &workflow.Analyzer{
		Market: s.Market,
		Search: s.Search,
		LLM:    newRetryingLLM(s.LLM, analysisID, requestID),
	}
}

func (s *Service) failAnalysis(ctx context.Context, analysisID, userID string, err error, startedAt *time.Time) {
	code := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := time.Now().UTC()
	if updateErr := s.Repo.Fail(context.Background(), analysisID, code, msg, completedAt); updateErr != nil {
		if errors.Is(updateErr, ErrFinalized) {
			return
		}
		telemetry.Error("analysis.fail_update_failed", map[string]any{
			"analysis_id": analysisID,
			"error":       sanitizeError(updateErr),
			"cause":       msg,
		})
	}
	metrics.IncAnalysisFailed()
	if startedAt != nil {
		metrics.ObserveAnalysisDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"analysis_id":       analysisID,
		"status":            StatusFailed,
		"status_transition": "running->failed",
		"error_code":        code,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeLLMTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm")) {
		return ErrorCodeLLMTimeout
	}
	if strings.Contains(msg, "schema") || strings.Contains(msg, "llm output invalid") ||
		strings.Contains(msg, "final report:") || strings.Contains(msg, "financial analysis:") || strings.Contains(msg, "market analysis:") {
		return ErrorCodeLLMSchemaMismatch
	}
	if strings.Contains(msg, "market data") || strings.Contains(msg, "news search") ||
		strings.Contains(msg, "fmp ") || strings.Contains(msg, "tavily") {
		return ErrorCodeProvider
	}
	if strings.Contains(msg, "validation") && !strings.Contains(msg, "llm") {
		return ErrorCodeValidation
	}
	return ErrorCodeInternal
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
