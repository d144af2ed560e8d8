package analyses

import (
	"time"

	"advisor-backend/internal/workflow"
)

// Job statuses. A job is created pending, moves to running when the workflow
// starts, and reaches exactly one of completed or failed.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Analysis represents one investment-analysis job.
type Analysis struct {
	ID           string                `json:"id"`
	Ticker       string                `json:"ticker"`
	UserID       string                `json:"userId"`
	Status       string                `json:"status"`
	Result       *workflow.FinalReport `json:"result,omitempty"`
	ErrorCode    *string               `json:"errorCode,omitempty"`
	ErrorMessage *string               `json:"errorMessage,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
	StartedAt    *time.Time            `json:"startedAt,omitempty"`
	CompletedAt  *time.Time            `json:"completedAt,omitempty"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// Terminal reports whether the job has reached a final status.
func (a Analysis) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusFailed
}
