package analyses

import (
	"context"
	"time"

	"advisor-backend/internal/workflow"
)

// Repo defines persistence operations for analysis jobs. Implementations
// must guard terminal statuses: once a job is completed or failed, further
// status writes return ErrFinalized.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	MarkRunning(ctx context.Context, analysisID string, startedAt time.Time) error
	Complete(ctx context.Context, analysisID string, result *workflow.FinalReport, completedAt time.Time) error
	Fail(ctx context.Context, analysisID, errorCode, errorMessage string, completedAt time.Time) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error)
}
