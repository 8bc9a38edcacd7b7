package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/TrainingPlatform/pkg/database"
	"github.com/utafrali/TrainingPlatform/pkg/health"
	pkgkafka "github.com/utafrali/TrainingPlatform/pkg/kafka"
	"github.com/utafrali/TrainingPlatform/pkg/middleware"
	"github.com/utafrali/TrainingPlatform/pkg/tracing"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/config"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/event"
	handler "github.com/utafrali/TrainingPlatform/services/auth/internal/handler/http"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/repository"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/repository/postgres"
	redisrepo "github.com/utafrali/TrainingPlatform/services/auth/internal/repository/redis"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/service"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/token"
	"github.com/utafrali/TrainingPlatform/services/auth/migrations"
)

const serviceName = "auth"

// App owns every long-lived dependency of the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	authService    *service.AuthService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Signing key problems are fatal before anything is dialled.
	issuer, err := token.NewIssuer(token.Config{
		Secret:          cfg.JWTSecret,
		Issuer:          cfg.JWTIssuer,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		AllowWeakSecret: cfg.IsDevelopment(),
	})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}
	defer func() {
		if err != nil {
			_ = a.release()
		}
	}()

	if err := a.openPostgres(ctx); err != nil {
		return nil, err
	}
	registry, err := a.openRegistry(ctx)
	if err != nil {
		return nil, err
	}
	publisher := a.openProducer()

	// Build the dependency graph.
	a.authService = service.NewAuthService(
		postgres.NewIdentityRepository(a.pool),
		registry,
		issuer,
		event.NewProducer(publisher, logger),
		logger,
		service.WithBcryptCost(cfg.BcryptCost),
	)

	// HTTP router.
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterConfig{
		Service:   a.authService,
		Validator: issuer.Validator(),
		Health:    a.healthChecks(),
		Logger:    logger,
		CORS:      cors,
		Cookie:    handler.CookieConfig{Secure: cfg.SecureCookies(), TTL: cfg.RefreshTTL},
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openPostgres(ctx context.Context) error {
	pgCfg := a.cfg.Postgres()
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, a.logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("postgres connected",
		slog.String("host", a.cfg.PostgresHost),
		slog.String("database", a.cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if a.cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(a.cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}
	return nil
}

// openRegistry picks the refresh token backend. Postgres shares the identity
// pool; Redis gets its own client.
func (a *App) openRegistry(ctx context.Context) (repository.RefreshTokenRegistry, error) {
	if a.cfg.RefreshRegistry != config.RegistryRedis {
		a.logRegistryReady()
		return postgres.NewRefreshTokenRegistry(a.pool), nil
	}
	client, err := database.NewRedisClient(ctx, a.cfg.Redis())
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	if err := database.RegisterRedisPoolMetrics(prometheus.DefaultRegisterer, client, serviceName); err != nil {
		a.logger.Warn("redis pool metrics not registered", slog.String("error", err.Error()))
	}
	a.logRegistryReady()
	return redisrepo.NewRefreshTokenRegistry(client), nil
}

func (a *App) logRegistryReady() {
	a.logger.Info("refresh token registry ready", slog.String("backend", a.cfg.RefreshRegistry))
}

// openProducer returns nil when Kafka is off, which makes the event
// producer a no-op.
func (a *App) openProducer() event.Publisher {
	if !a.cfg.KafkaEnabled {
		return nil
	}
	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers), a.logger)
	a.logger.Info("kafka producer ready", slog.Any("brokers", a.cfg.KafkaBrokers))
	return a.producer
}

// healthChecks makes the stores critical and Kafka advisory.
func (a *App) healthChecks() *health.Handler {
	h := health.NewHandler()
	h.RegisterCritical("postgres", a.pool.Ping)
	if a.redis != nil {
		h.RegisterCritical("redis", func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}
	if a.producer != nil {
		h.RegisterNonCritical("kafka", a.producer.Ping)
	}
	return h
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start background refresh token purge.
	if a.cfg.JanitorEvery > 0 {
		go service.RunJanitor(ctx, a.authService, a.cfg.JanitorEvery, a.logger)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes everything NewApp opened except the HTTP server.
func (a *App) release() error {
	var errs []error

	// Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
