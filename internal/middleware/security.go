package middleware

import "net/http"

// SecurityConfig holds configuration for security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS.
	IsDevelopment bool
}

var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// Redirect targets vary per visitor, so shared caches must not keep them.
var redirectHeaders = [][2]string{
	{"Cache-Control", "private, no-store, max-age=0"},
	{"Vary", "User-Agent"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "no-referrer-when-downgrade"},
}

// Security sets hardening headers on the JSON and CSV API.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	headers := apiHeaders
	if !cfg.IsDevelopment {
		headers = append(headers[:len(headers):len(headers)],
			[2]string{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"})
	}
	return setHeaders(headers)
}

// RedirectHeaders marks redirect and landing responses as per-visitor.
func RedirectHeaders(next http.Handler) http.Handler {
	return setHeaders(redirectHeaders)(next)
}

func setHeaders(headers [][2]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range headers {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
