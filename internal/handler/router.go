package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bazaarly/analytics/internal/middleware"
)

// RouterConfig carries the handlers and middleware settings of the API.
type RouterConfig struct {
	Logger             *slog.Logger
	Version            string
	IsDevelopment      bool
	CORSAllowedOrigins []string
	MaxRequestBodySize int64
	RateLimit          middleware.RateLimitConfig

	Health    *HealthHandler
	Analytics *AnalyticsHandler
	Reports   *ReportHandler
	Metrics   http.Handler // nil leaves /metrics unmounted
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	h := New(cfg.Version)
	r := chi.NewRouter()

	// Global middleware. Identity runs before Logger so request lines
	// carry the user id.
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Identity)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
		r.Use(middleware.CORS(corsCfg))
	}

	r.Get("/", h.Index)
	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Healthz)
		r.Get("/readyz", cfg.Health.Readyz)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/analytics", func(r chi.Router) {
		if cfg.MaxRequestBodySize > 0 {
			r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))
		}

		// Ingestion: open to anonymous callers, rate limited per IP.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(cfg.RateLimit))
			r.Post("/track", cfg.Analytics.Track)
			r.Post("/page-view", cfg.Analytics.PageView)
			r.Post("/product-view", cfg.Analytics.ProductView)
			r.Post("/add-to-cart", cfg.Analytics.AddToCart)
			r.Post("/purchase", cfg.Analytics.Purchase)
			r.Post("/funnel-step", cfg.Analytics.FunnelStep)
			r.Post("/live-stream-view", cfg.Analytics.LiveStreamView)
		})

		// Reports: identity required, checked per handler.
		r.Get("/summary", cfg.Reports.Summary)
		r.Get("/realtime", cfg.Reports.Realtime)
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
