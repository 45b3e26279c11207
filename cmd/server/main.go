package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/facturaIA/invoice-integrity-service/api"
	"github.com/facturaIA/invoice-integrity-service/internal/ai"
	"github.com/facturaIA/invoice-integrity-service/internal/auth"
	"github.com/facturaIA/invoice-integrity-service/internal/cache"
	"github.com/facturaIA/invoice-integrity-service/internal/config"
	"github.com/facturaIA/invoice-integrity-service/internal/db"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/events"
	"github.com/facturaIA/invoice-integrity-service/internal/logging"
	"github.com/facturaIA/invoice-integrity-service/internal/metrics"
	"github.com/facturaIA/invoice-integrity-service/internal/services"
	"github.com/facturaIA/invoice-integrity-service/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: $CONFIG_PATH or ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", logging.Err(err))
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validator, err := services.LoadValidator(cfg.Validation.RulesFile, cfg.Validation.Tolerance, logger)
	if err != nil {
		return err
	}
	logger.Info("rule catalog loaded", logging.Int("tests", len(validator.Tests())))

	checks := map[string]api.HealthCheck{}
	deps := api.Deps{
		Validator: validator,
		Logger:    logger,
		Metrics:   metrics.New(true),
		Checks:    checks,
	}

	// Postgres is optional; without it only the ad-hoc endpoints work and
	// duplicate analysis reports INDETERMINATE
	var retriever duplication.CandidateRetriever = duplication.UnavailableRetriever{Reason: "candidate store not available"}
	if cfg.Database.Enabled() {
		if cfg.Database.MigrateOnStart {
			if err := db.MigrateUp(cfg.Database.URL); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}
		pool, err := db.Init(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("database not available, running without persistence", logging.Err(err))
		} else {
			defer db.Close()
			deps.Store = db.NewInvoiceRepository(pool)
			retriever = db.NewCandidateRepository(pool, cfg.Duplication.Weights)
			checks["database"] = db.Ping
		}
	}

	if cfg.Redis.Enabled() {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis not available, candidate cache disabled", logging.Err(err))
		} else {
			defer rdb.Close()
			retriever = cache.NewCachedRetriever(retriever, rdb,
				cache.WithPrefix(cfg.Redis.KeyPrefix),
				cache.WithTTL(cfg.Redis.TTL),
				cache.WithLogger(logger))
			checks["redis"] = func(ctx context.Context) error { return pingRedis(ctx, rdb) }
		}
	}

	detector, err := duplication.NewDetector(cfg.Duplication, retriever, duplication.WithLogger(logger))
	if err != nil {
		return err
	}
	deps.Detector = detector

	if cfg.Kafka.Enabled() {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		deps.Publisher = publisher
	}

	if cfg.Storage.Enabled() {
		store, err := storage.Init(ctx, cfg.Storage)
		if err != nil {
			logger.Warn("MinIO storage not available, reports will not be archived", logging.Err(err))
		} else {
			deps.Archive = store
			checks["storage"] = store.Ping
		}
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return err
	}
	deps.Explainer = ai.NewExplainer(provider, cfg.AI.Timeout, logger)

	handler := api.NewHandler(deps)
	var root http.Handler = handler.SetupRoutes()

	if cfg.Auth.Enabled() {
		root = auth.NewAuthenticator(cfg.Auth).JWTMiddleware(root, "/health", "/metrics")
	} else {
		logger.Warn("JWT secret not set, API is unauthenticated")
	}
	if cfg.Server.RateLimit > 0 {
		limiter := api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		go limiter.Run(ctx)
		root = limiter.Middleware(root)
	}
	root = api.RequestID(api.RequestLogger(logger.Named("http"))(root))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting invoice integrity service",
			logging.String("addr", srv.Addr),
			logging.String("version", api.Version),
			logging.Bool("database", deps.Store != nil),
			logging.Bool("storage", deps.Archive != nil),
			logging.Bool("kafka", cfg.Kafka.Enabled()),
			logging.String("ai_provider", cfg.AI.Provider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func pingRedis(ctx context.Context, rdb redis.Cmdable) error {
	return rdb.Ping(ctx).Err()
}
