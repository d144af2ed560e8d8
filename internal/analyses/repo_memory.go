package analyses

import (
	"context"
	"sort"
	"sync"
	"time"

	"advisor-backend/internal/workflow"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]Analysis
	byUser map[string][]string
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Analysis),
		byUser: make(map[string][]string),
	}
}

// Create stores the analysis.
func (r *MemoryRepo) Create(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[analysis.ID] = analysis
	r.byUser[analysis.UserID] = append(r.byUser[analysis.UserID], analysis.ID)
	return nil
}

// GetByID returns an analysis by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return analysis, nil
}

// MarkRunning transitions a pending analysis to running.
func (r *MemoryRepo) MarkRunning(ctx context.Context, analysisID string, startedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	if analysis.Terminal() {
		return ErrFinalized
	}
	analysis.Status = StatusRunning
	analysis.StartedAt = &startedAt
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = analysis
	return nil
}

// Complete transitions an analysis to completed with its report. Terminal
// jobs are never overwritten.
func (r *MemoryRepo) Complete(ctx context.Context, analysisID string, result *workflow.FinalReport, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	if analysis.Terminal() {
		return ErrFinalized
	}
	analysis.Status = StatusCompleted
	analysis.Result = result
	analysis.CompletedAt = &completedAt
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = analysis
	return nil
}

// Fail transitions an analysis to failed with no result.
func (r *MemoryRepo) Fail(ctx context.Context, analysisID, errorCode, errorMessage string, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	if analysis.Terminal() {
		return ErrFinalized
	}
	analysis.Status = StatusFailed
	analysis.Result = nil
	analysis.ErrorCode = &errorCode
	analysis.ErrorMessage = &errorMessage
	analysis.CompletedAt = &completedAt
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = analysis
	return nil
}

// ListByUser returns analyses for a user, newest first, with limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	ids := r.byUser[userID]
	analyses := make([]Analysis, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.byID[id]; ok {
			analyses = append(analyses, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
	})

	if offset >= len(analyses) {
		return []Analysis{}, nil
	}
	end := len(analyses)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return analyses[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
