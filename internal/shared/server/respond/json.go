package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Accepted writes a 202 Accepted JSON response. Used for job submissions
// that complete in the background.
func Accepted(c *gin.Context, payload any) {
	JSON(c, http.StatusAccepted, payload)
}
