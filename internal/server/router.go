package server

import (
	"gitvault/internal/auth"
	"gitvault/internal/config"
	"gitvault/internal/file"
	"gitvault/internal/metrics"
	"gitvault/internal/provider"
	"gitvault/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	DB          *pgxpool.Pool
	Provider    *provider.Client
	Verifier    *auth.Verifier
	FileService *file.Service
	Limiter     *ratelimit.UserLimiter
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group("/v1")
	protected := api.Group("/")
	protected.Use(auth.Middleware(deps.Verifier))
	if deps.Limiter != nil {
		protected.Use(rateLimitMiddleware(deps.Limiter))
	}

	if deps.FileService != nil {
		file.RegisterRoutes(protected, deps.FileService)
	}

	return router
}
