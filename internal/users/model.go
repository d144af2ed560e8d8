package users

import "time"

// User is an account holder. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// OTP purposes.
const (
	OTPPurposeSignup = "signup"
)

// OTP is a one-time verification code tied to a user.
type OTP struct {
	ID         string
	UserID     string
	Code       string
	Purpose    string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
