package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/infra/config"
	"github.com/arklim/sso-broker/internal/transport/http/handlers"
	"github.com/arklim/sso-broker/internal/transport/http/middleware"
	"github.com/arklim/sso-broker/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Broker        *usecase.BrokerService
	Identity      *usecase.IdentityService
	Authorization *usecase.AuthorizationService
	Profile       *usecase.ProfileService
	Admin         *usecase.AdminService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Verifier port.TokenVerifier
	Services ServiceSet
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if len(deps.Config.CORS.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	identityMiddleware := middleware.RequireIdentity(deps.Verifier, deps.Services.Identity)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		sessionHandler := handlers.NewSessionHandler(deps.Services.Broker)
		sessionPublic := api.Group("/sessions")
		sessionAuthed := api.Group("/sessions")
		sessionAuthed.Use(identityMiddleware)
		sessionHandler.RegisterRoutes(sessionPublic, sessionAuthed)

		authzHandler := handlers.NewAuthorizationHandler(deps.Services.Broker, deps.Services.Authorization)
		authzGroup := api.Group("/authorization")
		authzGroup.Use(identityMiddleware)
		authzHandler.RegisterRoutes(authzGroup)

		appHandler := handlers.NewApplicationHandler(deps.Services.Broker)
		appHandler.RegisterRoutes(api.Group("/applications"))

		profileHandler := handlers.NewProfileHandler(deps.Services.Profile)
		profileGroup := api.Group("/profile")
		profileGroup.Use(identityMiddleware)
		profileHandler.RegisterRoutes(profileGroup)

		if deps.Services.Admin != nil {
			adminHandler := handlers.NewAdminHandler(deps.Services.Admin)
			adminGroup := api.Group("/admin")
			adminGroup.Use(identityMiddleware, middleware.RequireAdmin())
			adminHandler.RegisterRoutes(adminGroup)
		}
	}

	return r
}
