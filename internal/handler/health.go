package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Dependency is one readiness check. Optional dependencies degrade the
// service instead of failing it: redirects still resolve from Postgres
// when Redis is down.
type Dependency struct {
	Name     string
	Checker  HealthChecker
	Optional bool
}

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	deps    []Dependency
	timeout time.Duration
}

// NewHealthHandler creates a HealthHandler. A nil Checker is reported as not configured.
func NewHealthHandler(deps ...Dependency) *HealthHandler {
	return &HealthHandler{deps: deps, timeout: 2 * time.Second}
}

// HealthResponse is the body of both endpoints.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one dependency ping.
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Healthz reports that the process is up.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency in parallel. It answers 503 only when a
// required dependency fails; a failed optional one yields "degraded".
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := make([]CheckResult, len(h.deps))
	var wg sync.WaitGroup
	for i, dep := range h.deps {
		if dep.Checker == nil {
			results[i] = CheckResult{Status: "not configured"}
			continue
		}
		wg.Add(1)
		go func(i int, c HealthChecker) {
			defer wg.Done()
			start := time.Now()
			err := c.Ping(ctx)
			results[i] = CheckResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Status = "error"
				results[i].Error = err.Error()
			}
		}(i, dep.Checker)
	}
	wg.Wait()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]CheckResult, len(h.deps))}
	code := http.StatusOK
	for i, dep := range h.deps {
		resp.Checks[dep.Name] = results[i]
		if results[i].Status != "error" {
			continue
		}
		if !dep.Optional {
			resp.Status, code = "unavailable", http.StatusServiceUnavailable
		} else if code == http.StatusOK {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, code, resp)
}
