// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Ingestion modes.
const (
	// IngestDirect writes each event to Postgres inside the request.
	IngestDirect = "direct"
	// IngestStream appends events to a Redis stream drained by the worker.
	IngestStream = "stream"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Ingestion
	IngestMode         string        `env:"INGEST_MODE" envDefault:"direct"`
	WorkerEnabled      bool          `env:"WORKER_ENABLED" envDefault:"true"`
	WorkerBatchSize    int           `env:"WORKER_BATCH_SIZE" envDefault:"500"`
	WorkerBlockTimeout time.Duration `env:"WORKER_BLOCK_TIMEOUT" envDefault:"5s"`
	DefaultCurrency    string        `env:"DEFAULT_CURRENCY" envDefault:"EUR"`

	// Enrichment. Empty GeoIPDBPath keeps the placeholder geo provider.
	GeoIPDBPath string `env:"GEOIP_DB_PATH" envDefault:""`

	// Aggregation
	AggregationTimeout time.Duration `env:"AGGREGATION_TIMEOUT" envDefault:"10s"`
	SummaryCacheTTL    time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"30s"`
	LiveStreamsKey     string        `env:"LIVE_STREAMS_KEY" envDefault:"live_streams"`

	// Rate limiting on the ingestion routes
	RateLimitTrackEnabled bool `env:"RATE_LIMIT_TRACK_ENABLED" envDefault:"true"`
	RateLimitTrackRPS     int  `env:"RATE_LIMIT_TRACK_RPS" envDefault:"20"`
	RateLimitTrackBurst   int  `env:"RATE_LIMIT_TRACK_BURST" envDefault:"40"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://shop.example,*.shop.example")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StreamIngest reports whether events go through the Redis stream.
func (c *Config) StreamIngest() bool {
	return c.IngestMode == IngestStream
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	var errs []error

	switch c.IngestMode {
	case IngestDirect, IngestStream:
	default:
		errs = append(errs, fmt.Errorf("INGEST_MODE must be %q or %q, got %q", IngestDirect, IngestStream, c.IngestMode))
	}

	if !isCurrencyCode(c.DefaultCurrency) {
		errs = append(errs, fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter upper-case code, got %q", c.DefaultCurrency))
	}

	if c.WorkerBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_BATCH_SIZE must be positive, got %d", c.WorkerBatchSize))
	}
	if c.AggregationTimeout < 0 {
		errs = append(errs, errors.New("AGGREGATION_TIMEOUT must not be negative"))
	}
	if c.SummaryCacheTTL < 0 {
		errs = append(errs, errors.New("SUMMARY_CACHE_TTL must not be negative"))
	}
	if c.RateLimitTrackEnabled && (c.RateLimitTrackRPS <= 0 || c.RateLimitTrackBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_TRACK_RPS and RATE_LIMIT_TRACK_BURST must be positive"))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
