package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snapprint/snapprint/pkg/database"
	"github.com/snapprint/snapprint/pkg/health"
	"github.com/snapprint/snapprint/pkg/httpclient"
	pkgkafka "github.com/snapprint/snapprint/pkg/kafka"
	"github.com/snapprint/snapprint/pkg/middleware"
	"github.com/snapprint/snapprint/pkg/tracing"

	"github.com/snapprint/snapprint/internal/auth"
	"github.com/snapprint/snapprint/internal/config"
	"github.com/snapprint/snapprint/internal/event"
	handler "github.com/snapprint/snapprint/internal/handler/http"
	"github.com/snapprint/snapprint/internal/repository/postgres"
	"github.com/snapprint/snapprint/internal/service"
	"github.com/snapprint/snapprint/internal/storage/memory"
	"github.com/snapprint/snapprint/migrations"
)

// App wires together all dependencies and runs the snapprint server.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	pool            *pgxpool.Pool
	producer        *pkgkafka.Producer
	httpServer      *http.Server
	tracingShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Tracing.
	tracingShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "snapprint-server",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	repo := postgres.NewOrderRepository(pool)
	store := memory.New(cfg.StorageBaseURL)
	eventProducer := event.NewProducer(producer, logger)

	orderService := service.NewOrderService(repo, store, eventProducer, logger, cfg.UploadTimeout)

	fetchClient := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{
			Timeout:         cfg.FetchTimeout,
			MaxConnsPerHost: 16,
		}),
		httpclient.DefaultCircuitBreakerConfig("bundle-fetch"),
		logger,
	)
	bundleService := service.NewBundleService(repo, service.NewHTTPFetcher(fetchClient), eventProducer, logger, cfg.FetchTimeout)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	router := handler.NewRouter(orderService, bundleService, healthHandler, jwtManager.Middleware(), store, logger, handler.RouterConfig{
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
		},
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		PprofCIDRs:     cfg.PprofCIDRs,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
		// Long read timeout: multipart submissions carry full print files.
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		producer:        producer,
		httpServer:      httpServer,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
