package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveHeaders(t *testing.T, mw func(http.Handler) http.Handler) http.Header {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary", nil))
	return rec.Header()
}

func TestSecurity(t *testing.T) {
	t.Parallel()

	h := serveHeaders(t, Security(SecurityConfig{}))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", h.Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))

	dev := serveHeaders(t, Security(SecurityConfig{IsDevelopment: true}))
	assert.Empty(t, dev.Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", dev.Get("X-Content-Type-Options"))
}

func TestSecurity_ProductionDoesNotLeakIntoDevelopment(t *testing.T) {
	t.Parallel()

	_ = Security(SecurityConfig{})
	dev := serveHeaders(t, Security(SecurityConfig{IsDevelopment: true}))
	assert.Empty(t, dev.Get("Strict-Transport-Security"))
	assert.Len(t, apiHeaders, 5)
}

func TestRedirectHeaders(t *testing.T) {
	t.Parallel()

	handler := RedirectHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://apps.apple.com/app/id1", http.StatusFound)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "private, no-store, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "User-Agent", rec.Header().Get("Vary"))
	assert.Equal(t, "no-referrer-when-downgrade", rec.Header().Get("Referrer-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
