package analyses

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"advisor-backend/internal/queue"
	"advisor-backend/internal/workflow"
)

type stubRunner struct {
	calls  int32
	report *workflow.FinalReport
	err    error
}

func (s *stubRunner) Run(ctx context.Context, ticker string) (*workflow.FinalReport, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.report, s.err
}

type captureQueue struct {
	messages []queue.Message
	err      error
}

func (q *captureQueue) Send(ctx context.Context, msg queue.Message) error {
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func testReport() *workflow.FinalReport {
	return &workflow.FinalReport{
		CompanyTicker:         "TEST",
		Pros:                  []string{"p"},
		Cons:                  []string{"c"},
		RiskAssessment:        "low",
		FinalRecommendation:   workflow.RecommendationInvest,
		RecommendationSummary: "ok",
	}
}

func TestSubmitCreatesPendingAndEnqueues(t *testing.T) {
	repo := NewMemoryRepo()
	q := &captureQueue{}
	svc := &Service{Repo: repo, Queue: q}

	analysis, err := svc.Submit(context.Background(), "tsla", "user-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if analysis.Status != StatusPending {
		t.Fatalf("status = %q, want pending", analysis.Status)
	}
	if analysis.Ticker != "TSLA" {
		t.Fatalf("ticker not normalized: %q", analysis.Ticker)
	}
	if len(q.messages) != 1 || q.messages[0].AnalysisID != analysis.ID {
		t.Fatalf("queue message not sent: %+v", q.messages)
	}

	stored, err := repo.GetByID(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusPending {
		t.Fatalf("stored status = %q", stored.Status)
	}
}

func TestSubmitRejectsInvalidTickers(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Queue: &captureQueue{}}
	for _, ticker := range []string{"", "  ", "1ABC", "WAY-TOO-LONG-TICKER", "BAD TICKER", "A$B"} {
		if _, err := svc.Submit(context.Background(), ticker, "user-1"); !errors.Is(err, ErrInvalidTicker) {
			t.Errorf("ticker %q: expected ErrInvalidTicker, got %v", ticker, err)
		}
	}
}

func TestSubmitAcceptsDottedAndDashedTickers(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Queue: &captureQueue{}}
	for _, ticker := range []string{"BRK.B", "BF-B", "A"} {
		if _, err := svc.Submit(context.Background(), ticker, "user-1"); err != nil {
			t.Errorf("ticker %q: unexpected error %v", ticker, err)
		}
	}
}

func TestSubmitEnqueueFailureSurfaces(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Queue: &captureQueue{err: errors.New("sqs down")}}
	if _, err := svc.Submit(context.Background(), "TSLA", "user-1"); err == nil {
		t.Fatal("expected enqueue error")
	}
}

func TestSubmitDispatchesInProcess(t *testing.T) {
	repo := NewMemoryRepo()
	runner := &stubRunner{report: testReport()}
	svc := &Service{
		Repo:       repo,
		Dispatcher: NewDispatcher(2),
		Runner:     runner,
	}

	analysis, err := svc.Submit(context.Background(), "TEST", "user-1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	svc.Dispatcher.Wait()

	stored, err := repo.GetByID(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", stored.Status)
	}
	if stored.Result == nil || stored.Result.FinalRecommendation != workflow.RecommendationInvest {
		t.Fatalf("result missing: %+v", stored.Result)
	}
}

func TestProcessAnalysisCompletes(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	seed := Analysis{ID: "a1", Ticker: "TEST", UserID: "u1", Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	runner := &stubRunner{report: testReport()}
	svc := &Service{Repo: repo, Runner: runner}

	if err := svc.ProcessAnalysis(context.Background(), "a1"); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), "a1")
	if stored.Status != StatusCompleted {
		t.Fatalf("status = %q", stored.Status)
	}
	if stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Fatal("timestamps not recorded")
	}
}

func TestProcessAnalysisRecordsFailure(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	seed := Analysis{ID: "a1", Ticker: "TEST", UserID: "u1", Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	runner := &stubRunner{err: errors.New("stage data_collection: market data: fmp profile TEST: unexpected status 502")}
	svc := &Service{Repo: repo, Runner: runner}

	if err := svc.ProcessAnalysis(context.Background(), "a1"); err == nil {
		t.Fatal("expected workflow error")
	}

	stored, _ := repo.GetByID(context.Background(), "a1")
	if stored.Status != StatusFailed {
		t.Fatalf("status = %q", stored.Status)
	}
	if stored.Result != nil {
		t.Fatal("failed job kept a result")
	}
	if stored.ErrorCode == nil || *stored.ErrorCode != ErrorCodeProvider {
		t.Fatalf("error code = %v, want %s", stored.ErrorCode, ErrorCodeProvider)
	}
}

func TestProcessAnalysisIdempotentOnTerminal(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	seed := Analysis{ID: "a1", Ticker: "TEST", UserID: "u1", Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	runner := &stubRunner{report: testReport()}
	svc := &Service{Repo: repo, Runner: runner}

	if err := svc.ProcessAnalysis(context.Background(), "a1"); err != nil {
		t.Fatalf("first process: %v", err)
	}
	first, _ := repo.GetByID(context.Background(), "a1")

	// Redelivery: must be a no-op, not a second run.
	if err := svc.ProcessAnalysis(context.Background(), "a1"); err != nil {
		t.Fatalf("second process: %v", err)
	}
	second, _ := repo.GetByID(context.Background(), "a1")

	if atomic.LoadInt32(&runner.calls) != 1 {
		t.Fatalf("workflow ran %d times, want 1", runner.calls)
	}
	if !first.CompletedAt.Equal(*second.CompletedAt) {
		t.Fatal("terminal job was rewritten on redelivery")
	}
}

func TestProcessAnalysisUnknownJob(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Runner: &stubRunner{report: testReport()}}
	if err := svc.ProcessAnalysis(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, ErrorCodeLLMTimeout},
		{errors.New("openai request timeout after 90s"), ErrorCodeLLMTimeout},
		{errors.New("stage financial_analyst: financial analysis schema: unknown field"), ErrorCodeLLMSchemaMismatch},
		{errors.New("stage final_advisor: final report: final_recommendation must be \"Invest\" or \"Do Not Invest\", got \"maybe\""), ErrorCodeLLMSchemaMismatch},
		{errors.New("stage data_collection: market data: fmp profile X: unexpected status 500"), ErrorCodeProvider},
		{errors.New("stage data_collection: news search: tavily status 429"), ErrorCodeProvider},
		{errors.New("panic: boom"), ErrorCodeInternal},
	}
	for _, tc := range cases {
		if got := classifyFailure(tc.err); got != tc.want {
			t.Errorf("classifyFailure(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestSanitizeErrorTruncatesAndFlattens(t *testing.T) {
	err := errors.New("line one\nline two\r" + strings.Repeat("x", 600))
	got := sanitizeError(err)
	if strings.ContainsAny(got, "\n\r") {
		t.Fatal("newlines survived sanitization")
	}
	if len(got) > 500 {
		t.Fatalf("message length %d exceeds cap", len(got))
	}
}
