package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, allowed []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = allowed

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/v1/analytics/summary", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORS(t *testing.T) {
	t.Parallel()

	dashboard := []string{"https://dash.smartlinks.test", "https://*.agency.test"}

	tests := []struct {
		name    string
		allowed []string
		method  string
		origin  string
		status  int
		allow   string
	}{
		{"nothing configured", nil, http.MethodGet, "https://dash.smartlinks.test", http.StatusOK, ""},
		{"exact origin", dashboard, http.MethodGet, "https://dash.smartlinks.test", http.StatusOK, "https://dash.smartlinks.test"},
		{"origin case ignored", []string{"HTTPS://DASH.SMARTLINKS.TEST"}, http.MethodGet, "https://dash.smartlinks.test", http.StatusOK, "https://dash.smartlinks.test"},
		{"unknown origin preflight", dashboard, http.MethodOptions, "https://evil.test", http.StatusForbidden, ""},
		{"allowed preflight", dashboard, http.MethodOptions, "https://dash.smartlinks.test", http.StatusNoContent, "https://dash.smartlinks.test"},
		{"subdomain pattern", dashboard, http.MethodGet, "https://client1.agency.test", http.StatusOK, "https://client1.agency.test"},
		{"pattern excludes apex lookalike", dashboard, http.MethodGet, "https://badagency.test", http.StatusOK, ""},
		{"pattern excludes bare apex", dashboard, http.MethodGet, "https://agency.test", http.StatusOK, ""},
		{"pattern checks scheme", dashboard, http.MethodGet, "http://client1.agency.test", http.StatusOK, ""},
		{"same-origin request", dashboard, http.MethodGet, "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := corsRequest(t, tt.allowed, tt.method, tt.origin)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.allow, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.origin != "" {
				assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	t.Parallel()

	rec := corsRequest(t, []string{"https://dash.smartlinks.test"}, http.MethodOptions, "https://dash.smartlinks.test")

	h := rec.Header()
	assert.Equal(t, "GET, POST, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Contains(t, h.Get("Access-Control-Allow-Headers"), RequestIDHeader)
	assert.Equal(t, "86400", h.Get("Access-Control-Max-Age"))
	assert.Empty(t, h.Get("Access-Control-Allow-Credentials"))
}

func TestCORS_ExposesExportHeaders(t *testing.T) {
	t.Parallel()

	rec := corsRequest(t, []string{"https://dash.smartlinks.test"}, http.MethodGet, "https://dash.smartlinks.test")

	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	assert.Contains(t, exposed, "Content-Disposition")
	assert.Contains(t, exposed, "X-RateLimit-Remaining")
	assert.Contains(t, exposed, RequestIDHeader)
}
