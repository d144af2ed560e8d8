package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"
)

// tokenTTL is the default lifetime stamped into new tokens.
const tokenTTL = 24 * time.Hour

// Claims represents the identity contained in a JWT.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Exp   int64  `json:"exp,omitempty"`
	Iat   int64  `json:"iat,omitempty"`
}

var (
	errMissingSecret = errors.New("jwt secret not configured")

	// ErrInvalidToken is returned for malformed, mis-signed, or expired tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// SignJWT signs the given claims with HS256 using the configured secret.
// Iat and Exp are stamped when unset.
func SignJWT(claims Claims) (string, error) {
	secret, err := secretKey()
	if err != nil {
		return "", err
	}
	if claims.Sub == "" {
		return "", errors.New("sub is required")
	}

	now := time.Now().UTC().Unix()
	if claims.Iat == 0 {
		claims.Iat = now
	}
	if claims.Exp == 0 {
		claims.Exp = now + int64(tokenTTL/time.Second)
	}

	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := encodeSegment(headerJSON) + "." + encodeSegment(payloadJSON)
	return signingInput + "." + signHS256(signingInput, secret), nil
}

// VerifyJWT verifies a token's signature and expiry and returns its claims.
func VerifyJWT(token string) (Claims, error) {
	secret, err := secretKey()
	if err != nil {
		return Claims{}, err
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}

	signingInput := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(signHS256(signingInput, secret)), []byte(parts[2])) {
		return Claims{}, ErrInvalidToken
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Exp != 0 && time.Now().UTC().Unix() > claims.Exp {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func signHS256(input string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return encodeSegment(mac.Sum(nil))
}

func secretKey() ([]byte, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, errMissingSecret
	}
	return []byte(secret), nil
}
