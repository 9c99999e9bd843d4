// Package main is the entrypoint for the analytics API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/bazaarly/analytics/internal/analytics"
	"github.com/bazaarly/analytics/internal/cache"
	"github.com/bazaarly/analytics/internal/config"
	"github.com/bazaarly/analytics/internal/enricher"
	"github.com/bazaarly/analytics/internal/handler"
	"github.com/bazaarly/analytics/internal/metrics"
	"github.com/bazaarly/analytics/internal/middleware"
	"github.com/bazaarly/analytics/internal/repository"
	"github.com/bazaarly/analytics/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	recorder := metrics.NewPrometheus()
	eventRepo := repository.NewEventRepository(repo)

	// Enrichment
	var geo enricher.GeoProvider = enricher.PlaceholderGeo{}
	var geoDB *enricher.GeoIPProvider
	if cfg.GeoIPDBPath != "" {
		geoDB, err = enricher.OpenGeoIP(cfg.GeoIPDBPath)
		if err != nil {
			logger.Error("failed to open geoip database", "path", cfg.GeoIPDBPath, "error", err)
			os.Exit(1)
		}
		geo = geoDB
		logger.Info("geoip database loaded", "path", cfg.GeoIPDBPath)
	}

	// Ingestion
	var sink analytics.Sink = analytics.DirectSink(eventRepo)
	if cfg.StreamIngest() {
		sink = analytics.NewPublisher(cacheClient.Client(), logger, recorder)
	}
	tracker := analytics.NewTracker(sink, enricher.New(geo), logger, recorder,
		analytics.WithDefaultCurrency(cfg.DefaultCurrency),
	)

	reporter := analytics.NewReporter(eventRepo, logger, recorder,
		analytics.WithSummaryCache(cacheClient.NewSummaryCache(cfg.SummaryCacheTTL)),
		analytics.WithLiveStreams(cacheClient.NewLiveStreams(cfg.LiveStreamsKey)),
		analytics.WithTimeout(cfg.AggregationTimeout),
	)

	router := handler.NewRouter(handler.RouterConfig{
		Logger:             logger,
		Version:            version,
		IsDevelopment:      cfg.IsDevelopment(),
		CORSAllowedOrigins: cfg.GetCORSAllowedOrigins(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		RateLimit: middleware.RateLimitConfig{
			Logger:  logger,
			Limiter: cacheClient,
			Enabled: cfg.RateLimitTrackEnabled,
			RPS:     cfg.RateLimitTrackRPS,
			Burst:   cfg.RateLimitTrackBurst,
		},
		Health:    handler.NewHealthHandler(repo, cacheClient, logger),
		Analytics: handler.NewAnalyticsHandler(tracker, logger),
		Reports:   handler.NewReportHandler(reporter, logger),
		Metrics:   recorder.Handler(),
	})

	srv := server.New(
		router,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Shutdown runs LIFO: connections registered first close last.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	if geoDB != nil {
		srv.OnShutdown("geoip", func(context.Context) error {
			return geoDB.Close()
		})
	}

	if cfg.StreamIngest() && cfg.WorkerEnabled {
		worker := analytics.NewWorker(cacheClient.Client(), eventRepo, logger, analytics.NewConsumerID(), recorder)
		worker.SetBatchSize(cfg.WorkerBatchSize)
		worker.SetBlockTimeout(cfg.WorkerBlockTimeout)

		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("analytics worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("analytics-worker", worker.Shutdown)
	}

	srv.OnShutdown("tracker", tracker.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"version", version,
		"ingest_mode", cfg.IngestMode,
	)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	err = srv.Run(runCtx)
	stop()
	if err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", handler.ServiceName)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
