package users

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"advisor-backend/internal/mailer"
	"advisor-backend/internal/shared/auth"
	"advisor-backend/internal/shared/telemetry"
)

const (
	otpLength = 6
	otpTTL    = 10 * time.Minute

	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotVerified        = errors.New("email not verified")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// Service contains account and authentication logic. Signup creates an
// unverified user and mails a one-time code; verify-otp flips the flag
// and issues a token.
type Service struct {
	Repo   Repo
	Mailer mailer.Sender
}

// NewService constructs a Service.
func NewService(repo Repo, sender mailer.Sender) *Service {
	return &Service{Repo: repo, Mailer: sender}
}

// Signup registers a new unverified user and sends a verification code.
func (s *Service) Signup(ctx context.Context, email, name, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, errors.New("a valid email is required")
	}
	if strings.TrimSpace(name) == "" {
		return User{}, errors.New("name is required")
	}
	if len(password) < minPasswordLength {
		return User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	if err := s.issueOTP(ctx, user, OTPPurposeSignup); err != nil {
		return User{}, err
	}
	return user, nil
}

// VerifyOTP consumes a signup code, marks the user verified, and returns
// a signed token.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (User, string, error) {
	user, err := s.Repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, "", ErrOTPInvalid
		}
		return User{}, "", err
	}

	now := time.Now().UTC()
	if err := s.Repo.ConsumeOTP(ctx, user.ID, OTPPurposeSignup, strings.TrimSpace(code), now); err != nil {
		return User{}, "", err
	}
	if !user.Verified {
		if err := s.Repo.MarkVerified(ctx, user.ID, now); err != nil {
			return User{}, "", err
		}
		user.Verified = true
		user.UpdatedAt = now
	}

	token, err := s.signToken(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Login checks credentials and returns a signed token. Unverified users
// are rejected.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	user, err := s.Repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, "", ErrInvalidCredentials
		}
		return User{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, "", ErrInvalidCredentials
	}
	if !user.Verified {
		return User{}, "", ErrNotVerified
	}

	token, err := s.signToken(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// GetByID returns a user by ID.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}

func (s *Service) issueOTP(ctx context.Context, user User, purpose string) error {
	code, err := generateOTP(otpLength)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	now := time.Now().UTC()
	otp := OTP{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(otpTTL),
		CreatedAt: now,
	}
	if err := s.Repo.CreateOTP(ctx, otp); err != nil {
		return err
	}

	if s.Mailer != nil {
		body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(otpTTL.Minutes()))
		if err := s.Mailer.Send(ctx, user.Email, "Verify your account", body); err != nil {
			telemetry.Error("users.otp_mail_failed", map[string]any{
				"user_id": user.ID,
				"error":   err.Error(),
			})
			return fmt.Errorf("send verification mail: %w", err)
		}
	}
	return nil
}

func (s *Service) signToken(user User) (string, error) {
	return auth.SignJWT(auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}

func generateOTP(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
