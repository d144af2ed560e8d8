package analyses

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"advisor-backend/internal/shared/server/middleware"
	"advisor-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.startAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
}

type startAnalysisRequest struct {
	Ticker string `json:"ticker"`
}

func (h *Handler) startAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req startAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "request body must be JSON with a ticker field", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, err := h.Svc.Submit(ctx, req.Ticker, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidTicker):
			respond.Error(c, http.StatusBadRequest, "validation_error", "ticker must be 1-10 characters: letters, digits, dot or dash, starting with a letter", []map[string]string{
				{"field": "ticker", "issue": "invalid_format"},
			})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	respond.Accepted(c, gin.H{
		"analysisId": analysis.ID,
		"ticker":     analysis.Ticker,
		"status":     analysis.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	if analysisID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
		return
	}

	analysis, err := h.Svc.Get(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}

	resp := gin.H{
		"id":        analysis.ID,
		"ticker":    analysis.Ticker,
		"status":    analysis.Status,
		"createdAt": analysis.CreatedAt,
	}
	if analysis.Status == StatusCompleted && analysis.Result != nil {
		resp["result"] = analysis.Result
	}
	if analysis.Status == StatusFailed {
		if analysis.ErrorCode != nil {
			resp["errorCode"] = *analysis.ErrorCode
		}
		if analysis.ErrorMessage != nil {
			resp["errorMessage"] = *analysis.ErrorMessage
		}
	}
	if analysis.CompletedAt != nil {
		resp["completedAt"] = *analysis.CompletedAt
	}

	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	if isGuest, ok := c.Get("isGuest"); ok {
		if guest, ok2 := isGuest.(bool); ok2 && guest {
			respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
			return
		}
	}

	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	analyses, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}

	resp := make([]gin.H, 0, len(analyses))
	for _, a := range analyses {
		item := gin.H{
			"analysisId": a.ID,
			"ticker":     a.Ticker,
			"status":     a.Status,
			"createdAt":  a.CreatedAt,
		}
		if a.Status == StatusCompleted && a.Result != nil {
			item["recommendation"] = a.Result.FinalRecommendation
			item["summary"] = a.Result.RecommendationSummary
		}
		resp = append(resp, item)
	}

	respond.JSON(c, http.StatusOK, resp)
}
