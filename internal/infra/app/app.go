package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/infra/cognito"
	"github.com/arklim/sso-broker/internal/infra/config"
	"github.com/arklim/sso-broker/internal/infra/database"
	kafkainfra "github.com/arklim/sso-broker/internal/infra/kafka"
	"github.com/arklim/sso-broker/internal/infra/logger"
	redisinfra "github.com/arklim/sso-broker/internal/infra/redis"
	"github.com/arklim/sso-broker/internal/infra/telemetry"
	postgresrepo "github.com/arklim/sso-broker/internal/repository/postgres"
	redisrepo "github.com/arklim/sso-broker/internal/repository/redis"
	"github.com/arklim/sso-broker/internal/transport/http/middleware"
	"github.com/arklim/sso-broker/internal/transport/http/routes"
	"github.com/arklim/sso-broker/internal/usecase"
)

// Application wires every component together at startup. All dependencies
// are constructed once here and passed down explicitly.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

// New builds the application graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	cognitoClient, err := cognito.NewClient(ctx, cfg.Cognito, log)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init cognito client: %w", err)
	}
	verifier := cognito.NewVerifier(cfg.Cognito, log)

	repos := postgresrepo.NewRepositories(pool)
	sessionRepo := redisrepo.NewSessionRepository(redisClient.Client(), cfg.Redis.SessionPrefix, log)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	identityService := usecase.NewIdentityService(repos.Users, eventPublisher, log)
	authzService := usecase.NewAuthorizationService(repos.Grants, repos.Applications, eventPublisher, log)
	sessionService := usecase.NewSessionService(sessionRepo, cognitoClient, cfg.Session, log)
	brokerService := usecase.NewBrokerService(verifier, identityService, authzService, sessionService, repos.Applications, eventPublisher, cfg.Auth.AutoGrant, log)
	profileService := usecase.NewProfileService(cognitoClient, repos.Users, log)
	adminService := usecase.NewAdminService(cognitoClient, repos.Users, sessionService, authzService, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Verifier: verifier,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Broker:        brokerService,
			Identity:      identityService,
			Authorization: authzService,
			Profile:       profileService,
			Admin:         adminService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting SSO broker API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
