package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncRedirect(OutcomeRedirect)
	m.IncRedirect(OutcomeRedirect)
	m.IncRedirect(OutcomeNotFound)
	m.IncDeviceCache(true)
	m.IncDeviceCache(false)
	m.IncDeviceCache(false)
	m.IncGeoLookup("fallback")
	m.AddRetentionPurged(1500)
	m.ObserveRedirectDuration(3 * time.Millisecond)

	s := m.Snapshot()
	if s.Redirects[OutcomeRedirect] != 2 {
		t.Errorf("Redirects[redirect] = %d, want 2", s.Redirects[OutcomeRedirect])
	}
	if s.Redirects[OutcomeNotFound] != 1 {
		t.Errorf("Redirects[not_found] = %d, want 1", s.Redirects[OutcomeNotFound])
	}
	if s.DeviceCacheHits != 1 || s.DeviceCacheMisses != 2 {
		t.Errorf("device cache = %d/%d, want 1/2", s.DeviceCacheHits, s.DeviceCacheMisses)
	}
	if s.GeoLookups["fallback"] != 1 {
		t.Errorf("GeoLookups[fallback] = %d, want 1", s.GeoLookups["fallback"])
	}
	if s.RetentionPurged != 1500 {
		t.Errorf("RetentionPurged = %d, want 1500", s.RetentionPurged)
	}
	if s.RedirectDurationCount != 1 {
		t.Errorf("RedirectDurationCount = %d, want 1", s.RedirectDurationCount)
	}
}

func TestInMemoryRecorder_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncEventSinkPush("success")
	s := m.Snapshot()
	m.IncEventSinkPush("success")

	if s.EventSinkPushes["success"] != 1 {
		t.Errorf("snapshot mutated after capture: %d", s.EventSinkPushes["success"])
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	t.Parallel()

	p := NewPrometheus()
	p.IncRedirect(OutcomeLanding)
	p.AddRetentionPurged(3)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, `smartlinks_redirects_total{outcome="landing"} 1`) {
		t.Errorf("redirect counter missing from exposition:\n%s", text)
	}
	if !strings.Contains(text, "smartlinks_retention_purged_rows_total 3") {
		t.Errorf("retention counter missing from exposition")
	}
}

var (
	_ Recorder = discard{}
	_ Recorder = (*InMemoryRecorder)(nil)
	_ Recorder = (*PrometheusRecorder)(nil)
)
