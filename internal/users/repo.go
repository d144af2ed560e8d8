package users

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
	ErrOTPInvalid = errors.New("invalid or expired code")
)

// Repo defines persistence for users and their verification codes.
type Repo interface {
	Create(ctx context.Context, user User) error
	GetByID(ctx context.Context, userID string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	MarkVerified(ctx context.Context, userID string, at time.Time) error

	CreateOTP(ctx context.Context, otp OTP) error
	// ConsumeOTP marks the newest unconsumed, unexpired code matching
	// user/purpose/code as consumed. Returns ErrOTPInvalid when no such
	// code exists.
	ConsumeOTP(ctx context.Context, userID, purpose, code string, now time.Time) error
}
