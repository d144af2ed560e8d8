package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new user. Returns ErrEmailTaken on a duplicate email.
func (r *PGRepo) Create(ctx context.Context, user User) error {
	const query = `
INSERT INTO users (id, email, name, password_hash, verified, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		user.ID,
		normalizeEmail(user.Email),
		user.Name,
		user.PasswordHash,
		user.Verified,
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return ErrEmailTaken
	}
	return err
}

// GetByID returns a user by ID.
func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	const query = `
SELECT id, email, name, password_hash, verified, created_at, updated_at
FROM users
WHERE id = $1
LIMIT 1`
	return r.scanUser(r.DB.QueryRowContext(ctx, query, userID))
}

// GetByEmail returns a user by email.
func (r *PGRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	const query = `
SELECT id, email, name, password_hash, verified, created_at, updated_at
FROM users
WHERE email = $1
LIMIT 1`
	return r.scanUser(r.DB.QueryRowContext(ctx, query, normalizeEmail(email)))
}

// MarkVerified flags the user as verified.
func (r *PGRepo) MarkVerified(ctx context.Context, userID string, at time.Time) error {
	const query = `
UPDATE users
SET verified = TRUE, updated_at = $2
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, userID, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateOTP stores a verification code.
func (r *PGRepo) CreateOTP(ctx context.Context, otp OTP) error {
	const query = `
INSERT INTO otp_verifications (id, user_id, otp_code, purpose, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		otp.ID,
		otp.UserID,
		otp.Code,
		otp.Purpose,
		otp.ExpiresAt,
		otp.CreatedAt,
	)
	return err
}

// ConsumeOTP marks the newest matching live code as consumed.
func (r *PGRepo) ConsumeOTP(ctx context.Context, userID, purpose, code string, now time.Time) error {
	const query = `
UPDATE otp_verifications
SET consumed_at = $4
WHERE id = (
    SELECT id FROM otp_verifications
    WHERE user_id = $1 AND purpose = $2 AND otp_code = $3
      AND consumed_at IS NULL AND expires_at > $4
    ORDER BY created_at DESC
    LIMIT 1
)`
	res, err := r.DB.ExecContext(ctx, query, userID, purpose, code, now)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOTPInvalid
	}
	return nil
}

func (r *PGRepo) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

var _ Repo = (*PGRepo)(nil)
