package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bazaarly/analytics/internal/cache"
)

// IngestLimiter takes one token from a per-client bucket. *cache.Cache
// implements it.
type IngestLimiter interface {
	AllowIngest(ctx context.Context, ip string, limit cache.Limit) (cache.Decision, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter IngestLimiter
	Enabled bool
	RPS     int // Requests per second
	Burst   int
}

// RateLimitIP returns middleware that rate limits requests per client IP.
// Mounted on the ingestion routes, which anonymous browsers can reach. A
// limiter error lets the request through.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	limit := cache.Limit{Rate: float64(cfg.RPS), Burst: cfg.Burst}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || cfg.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			decision, err := cfg.Limiter.AllowIngest(r.Context(), ip, limit)
			if err != nil {
				cfg.Logger.Warn("rate limiter unavailable, allowing request",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, cfg.Burst, decision.Remaining, decision.ResetAt)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := retryAfterSeconds(decision.RetryAfter)
			cfg.Logger.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.Int("retry_after_seconds", retryAfter),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeRateLimitError(w)
		})
	}
}

// retryAfterSeconds rounds up; Retry-After has whole-second resolution.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
}

// writeRateLimitError writes a 429 Too Many Requests response.
func writeRateLimitError(w http.ResponseWriter) {
	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// ClientIP returns the caller's address without the port. chi's RealIP
// middleware runs first and has already folded X-Forwarded-For and
// X-Real-IP into RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
