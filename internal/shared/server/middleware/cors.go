package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS sets CORS headers for allowed origins and handles preflight
// requests. A single "*" entry allows any origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		trimmed := strings.TrimSpace(o)
		switch {
		case trimmed == "*":
			allowAll = true
		case trimmed != "":
			origins[trimmed] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, allowed := origins[origin]
		if origin != "" && (allowAll || allowed) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Guest-Id, X-Request-Id")
			h.Set("Access-Control-Expose-Headers", "X-Request-Id")
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		c.Next()
	}
}
