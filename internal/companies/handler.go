package companies

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"advisor-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the companies service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches company routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/companies/search", h.search)
}

func (h *Handler) search(c *gin.Context) {
	query := c.Query("query")
	limit := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	results, err := h.Svc.Search(c.Request.Context(), query, limit)
	if err != nil {
		switch {
		case errors.Is(err, ErrQueryRequired):
			respond.Error(c, http.StatusBadRequest, "validation_error", "query parameter is required", nil)
		default:
			respond.Error(c, http.StatusBadGateway, "provider_error", "company search unavailable", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{"results": results})
}
