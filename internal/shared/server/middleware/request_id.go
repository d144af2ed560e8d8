package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "requestId"

// RequestID attaches a request ID to context and response header. An
// incoming X-Request-Id is trusted so callers can correlate retries.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

// RequestIDFromContext fetches the request ID stored by RequestID middleware.
func RequestIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(requestIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
