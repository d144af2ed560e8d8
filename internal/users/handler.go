package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"advisor-backend/internal/shared/server/middleware"
	"advisor-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the users service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterAuthRoutes attaches the public auth routes.
func (h *Handler) RegisterAuthRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/signup", h.signup)
	rg.POST("/auth/verify-otp", h.verifyOTP)
	rg.POST("/auth/login", h.login)
}

// RegisterRoutes attaches the authenticated user routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "email, name, and password are required", nil)
		return
	}

	user, err := h.Svc.Signup(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			respond.Error(c, http.StatusConflict, "email_taken", "email already registered", nil)
		case errors.Is(err, ErrWeakPassword):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusBadRequest, "validation_error", "signup failed", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"name":     user.Name,
		"verified": user.Verified,
	})
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "email and code are required", nil)
		return
	}

	user, token, err := h.Svc.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrOTPInvalid):
			respond.Error(c, http.StatusUnauthorized, "otp_invalid", "invalid or expired code", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "verification failed", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"email":    user.Email,
			"name":     user.Name,
			"verified": user.Verified,
		},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "email and password are required", nil)
		return
	}

	user, token, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			respond.Error(c, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", nil)
		case errors.Is(err, ErrNotVerified):
			respond.Error(c, http.StatusForbidden, "not_verified", "verify your email before logging in", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "login failed", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

func (h *Handler) me(c *gin.Context) {
	if isGuest, ok := c.Get("isGuest"); ok {
		if guest, ok2 := isGuest.(bool); ok2 && guest {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
			return
		}
	}
	userID := middleware.UserIDFromContext(c)
	user, err := h.Svc.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"name":     user.Name,
		"verified": user.Verified,
	})
}
