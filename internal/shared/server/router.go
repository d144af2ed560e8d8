package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"advisor-backend/internal/analyses"
	"advisor-backend/internal/companies"
	"advisor-backend/internal/services/health"
	"advisor-backend/internal/shared/config"
	"advisor-backend/internal/shared/metrics"
	"advisor-backend/internal/shared/server/middleware"
	"advisor-backend/internal/shared/server/respond"
	"advisor-backend/internal/users"
)

// Rate-limit groups. Submissions are costly (one full workflow per job);
// polls are cheap but chatty.
const (
	rateGroupSubmit = "SUBMIT"
	rateGroupPoll   = "POLL"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config          config.Config
	HealthService   *health.Service
	AnalysisHandler *analyses.Handler
	CompanyHandler  *companies.Handler
	UserHandler     *users.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				rateGroupSubmit: {Rate: 0.2, Burst: 3},
				rateGroupPoll:   {Rate: 5, Burst: 20},
			},
			GroupFor: rateGroupFor,
		}),
	)

	healthSvc := deps.HealthService
	if healthSvc == nil {
		healthSvc = health.NewService()
	}

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, healthSvc.Status())
	})
	r.GET("/metrics", metrics.Handler())

	if deps.UserHandler != nil {
		deps.UserHandler.RegisterAuthRoutes(api)
		deps.UserHandler.RegisterRoutes(api)
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.CompanyHandler != nil {
		deps.CompanyHandler.RegisterRoutes(api)
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case c.Request.Method == http.MethodPost && strings.HasSuffix(path, "/analyses"):
		return rateGroupSubmit
	case c.Request.Method == http.MethodGet && strings.Contains(path, "/analyses"):
		return rateGroupPoll
	default:
		return ""
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
