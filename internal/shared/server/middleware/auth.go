package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"advisor-backend/internal/shared/auth"
	"advisor-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	userEmailKey = "userEmail"
	userNameKey  = "userName"
	isGuestKey   = "isGuest"
)

// publicPath reports whether the path is reachable without identity.
func publicPath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/auth/") || path == "/api/v1/health"
}

// Auth resolves the caller's identity: a Bearer JWT for registered users,
// or an X-Guest-Id header for anonymous callers. Either is stored in the
// gin context for downstream handlers.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		if publicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
			claims, ok := verifyBearer(header)
			if !ok {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			c.Set(userIDKey, claims.Sub)
			if claims.Email != "" {
				c.Set(userEmailKey, claims.Email)
			}
			if claims.Name != "" {
				c.Set(userNameKey, claims.Name)
			}
			c.Set(isGuestKey, false)
			c.Next()
			return
		}

		if guestID := strings.TrimSpace(c.GetHeader("X-Guest-Id")); guestID != "" {
			c.Set(userIDKey, "guest:"+guestID)
			c.Set(isGuestKey, true)
			c.Next()
			return
		}

		respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
	}
}

func verifyBearer(header string) (auth.Claims, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.Claims{}, false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if token == "" {
		return auth.Claims{}, false
	}
	claims, err := auth.VerifyJWT(token)
	if err != nil {
		return auth.Claims{}, false
	}
	return claims, true
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}
