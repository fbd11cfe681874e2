package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/smartlinks/smartlinks/internal/cache"
)

// Limiter checks a token bucket keyed by scope and client IP.
type Limiter interface {
	CheckIPRateLimit(ctx context.Context, scope, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig configures one rate-limited route group.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter
	Enabled bool
	// Scope separates buckets, e.g. "redirect" and "analytics".
	Scope string
	RPS   int
	Burst int
}

type rateLimitBody struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		RetryAfter int64  `json:"retry_after"`
	} `json:"error"`
}

// RateLimitIP limits requests per client IP. When the limiter errors the
// request is let through.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Limiter == nil || cfg.RPS <= 0 {
			return next
		}
		limit := strconv.Itoa(max(cfg.Burst, 1))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := cfg.Limiter.CheckIPRateLimit(r.Context(), cfg.Scope, ClientIP(r), cfg.RPS, cfg.Burst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed", "scope", cfg.Scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := int64(res.RetryAfter.Seconds())
			cfg.Logger.Warn("rate limit exceeded",
				"scope", cfg.Scope,
				"route", r.Method+" "+r.URL.Path,
				"retry_after_seconds", retry,
				"request_id", GetRequestID(r.Context()),
			)

			var body rateLimitBody
			body.Error.Code = "RATE_LIMITED"
			body.Error.Message = "Too many requests"
			body.Error.RetryAfter = retry

			h.Set("Retry-After", strconv.FormatInt(retry, 10))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(body)
		})
	}
}
