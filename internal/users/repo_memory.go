package users

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRepo stores users and OTPs in memory. Safe for concurrent use.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
	otps    []OTP
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

// Create stores a new user. The email must be unused.
func (r *MemoryRepo) Create(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	email := normalizeEmail(user.Email)
	if _, taken := r.byEmail[email]; taken {
		return ErrEmailTaken
	}
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID
	return nil
}

// GetByID returns a user by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

// GetByEmail returns a user by email.
func (r *MemoryRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.byID[id], nil
}

// MarkVerified flags the user as verified.
func (r *MemoryRepo) MarkVerified(ctx context.Context, userID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[userID]
	if !ok {
		return ErrNotFound
	}
	user.Verified = true
	user.UpdatedAt = at
	r.byID[userID] = user
	return nil
}

// CreateOTP stores a verification code.
func (r *MemoryRepo) CreateOTP(ctx context.Context, otp OTP) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.otps = append(r.otps, otp)
	return nil
}

// ConsumeOTP marks the newest matching live code as consumed.
func (r *MemoryRepo) ConsumeOTP(ctx context.Context, userID, purpose, code string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.otps) - 1; i >= 0; i-- {
		otp := r.otps[i]
		if otp.UserID != userID || otp.Purpose != purpose || otp.Code != code {
			continue
		}
		if otp.ConsumedAt != nil || now.After(otp.ExpiresAt) {
			continue
		}
		consumed := now
		r.otps[i].ConsumedAt = &consumed
		return nil
	}
	return ErrOTPInvalid
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Repo = (*MemoryRepo)(nil)
