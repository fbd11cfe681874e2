package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/smartlinks/smartlinks/internal/middleware"
)

// RouterConfig holds everything the HTTP surface is built from.
// Metrics may be nil to leave /metrics unmounted.
type RouterConfig struct {
	Logger    *slog.Logger
	Health    *HealthHandler
	Redirect  *RedirectHandler
	Analytics *AnalyticsHandler
	Metrics   http.Handler

	Limiter            middleware.Limiter
	RateLimitEnabled   bool
	RedirectRPS        int
	RedirectBurst      int
	AnalyticsRPS       int
	AnalyticsBurst     int
	CORSAllowedOrigins []string
	IsDevelopment      bool
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger, nil))

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Use(middleware.CORS(corsCfg))
		r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
		r.Use(middleware.RateLimitIP(middleware.RateLimitConfig{
			Logger:  cfg.Logger,
			Limiter: cfg.Limiter,
			Enabled: cfg.RateLimitEnabled,
			Scope:   "analytics",
			RPS:     cfg.AnalyticsRPS,
			Burst:   cfg.AnalyticsBurst,
		}))
		r.NotFound(NotFound)
		r.MethodNotAllowed(MethodNotAllowed)
		cfg.Analytics.Routes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer(cfg.Logger, middleware.RedirectHome))
		r.Use(middleware.RedirectHeaders)
		r.Use(middleware.RateLimitIP(middleware.RateLimitConfig{
			Logger:  cfg.Logger,
			Limiter: cfg.Limiter,
			Enabled: cfg.RateLimitEnabled,
			Scope:   "redirect",
			RPS:     cfg.RedirectRPS,
			Burst:   cfg.RedirectBurst,
		}))
		r.Get("/{slug}", cfg.Redirect.Redirect)
		r.Get("/{slug}/{platform}", cfg.Redirect.Redirect)
	})

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	return r
}
