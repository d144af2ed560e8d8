package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"advisor-backend/internal/workflow"
)

// PGRepo implements Repo using Postgres. Terminal-status guards are pushed
// into the UPDATE predicates so concurrent writers cannot revert a finished
// job.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (id, ticker, user_id, status, result, error_code, error_message, created_at, started_at, completed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	resultPayload, err := marshalResult(analysis.Result)
	if err != nil {
		return err
	}
	updatedAt := analysis.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = analysis.CreatedAt
	}
	_, err = r.DB.ExecContext(ctx, query,
		analysis.ID,
		analysis.Ticker,
		analysis.UserID,
		analysis.Status,
		resultPayload,
		analysis.ErrorCode,
		analysis.ErrorMessage,
		analysis.CreatedAt,
		analysis.StartedAt,
		analysis.CompletedAt,
		updatedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	const query = `
SELECT id, ticker, user_id, status, result, error_code, error_message, created_at, started_at, completed_at, updated_at
FROM analyses
WHERE id = $1
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, analysisID)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return analysis, err
}

// MarkRunning transitions a pending analysis to running.
func (r *PGRepo) MarkRunning(ctx context.Context, analysisID string, startedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = $2, started_at = $3, updated_at = now()
WHERE id = $1 AND status = $4`
	res, err := r.DB.ExecContext(ctx, query, analysisID, StatusRunning, startedAt, StatusPending)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, analysisID, res)
}

// Complete transitions an analysis to completed with its report.
func (r *PGRepo) Complete(ctx context.Context, analysisID string, result *workflow.FinalReport, completedAt time.Time) error {
	resultPayload, err := marshalResult(result)
	if err != nil {
		return err
	}
	const query = `
UPDATE analyses
SET status = $2, result = $3, completed_at = $4, updated_at = now()
WHERE id = $1 AND status NOT IN ($5, $6)`
	res, err := r.DB.ExecContext(ctx, query, analysisID, StatusCompleted, resultPayload, completedAt, StatusCompleted, StatusFailed)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, analysisID, res)
}

// Fail transitions an analysis to failed with no result.
func (r *PGRepo) Fail(ctx context.Context, analysisID, errorCode, errorMessage string, completedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = $2, result = NULL, error_code = $3, error_message = $4, completed_at = $5, updated_at = now()
WHERE id = $1 AND status NOT IN ($6, $7)`
	res, err := r.DB.ExecContext(ctx, query, analysisID, StatusFailed, errorCode, errorMessage, completedAt, StatusCompleted, StatusFailed)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, analysisID, res)
}

// ListByUser returns analyses for a user, newest first, with limit/offset.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, ticker, user_id, status, result, error_code, error_message, created_at, started_at, completed_at, updated_at
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, analysis)
	}
	if out == nil {
		out = []Analysis{}
	}
	return out, rows.Err()
}

// checkTransition distinguishes a missing row from a rejected transition
// when an UPDATE matched nothing.
func (r *PGRepo) checkTransition(ctx context.Context, analysisID string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM analyses WHERE id = $1)`, analysisID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrFinalized
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var result sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.Ticker,
		&a.UserID,
		&a.Status,
		&result,
		&errorCode,
		&errorMessage,
		&a.CreatedAt,
		&startedAt,
		&completedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Analysis{}, err
	}
	if result.Valid && result.String != "" {
		var report workflow.FinalReport
		if err := json.Unmarshal([]byte(result.String), &report); err != nil {
			return Analysis{}, err
		}
		a.Result = &report
	}
	if errorCode.Valid {
		a.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		a.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		a.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return a, nil
}

func marshalResult(result *workflow.FinalReport) (any, error) {
	if result == nil {
		return nil, nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

var _ Repo = (*PGRepo)(nil)
