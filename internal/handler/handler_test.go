package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlinks/smartlinks/internal/model"
	"github.com/smartlinks/smartlinks/internal/query"
	"github.com/smartlinks/smartlinks/internal/service"
)

type fakeRedirector struct {
	result service.RedirectResult
	last   service.RedirectRequest
}

func (f *fakeRedirector) ResolveRedirect(_ context.Context, req service.RedirectRequest) service.RedirectResult {
	f.last = req
	return f.result
}

type fakeEngine struct {
	err     error
	filters []query.Filter
	dim     query.Dimension
	limit   int
}

func (f *fakeEngine) Summary(_ context.Context, fl query.Filter) (query.Summary, error) {
	f.filters = append(f.filters, fl)
	return query.Summary{TotalClicks: 12, UniqueVisitors: 12, QRScans: 2, DirectVisits: 10}, f.err
}

func (f *fakeEngine) ClicksData(_ context.Context, fl query.Filter) (query.ClicksData, error) {
	f.filters = append(f.filters, fl)
	return query.ClicksData{Labels: []string{"2026-05-20"}, Values: []int64{3}}, f.err
}

func (f *fakeEngine) HourlyClicks(_ context.Context, fl query.Filter) (query.Hourly, error) {
	f.filters = append(f.filters, fl)
	return query.Hourly{}, f.err
}

func (f *fakeEngine) TopLinks(_ context.Context, fl query.Filter, limit int) ([]query.TopLink, error) {
	f.filters = append(f.filters, fl)
	f.limit = limit
	return []query.TopLink{}, f.err
}

func (f *fakeEngine) Insights(_ context.Context, fl query.Filter) (query.Insights, error) {
	f.filters = append(f.filters, fl)
	return query.Insights{}, f.err
}

func (f *fakeEngine) Breakdown(_ context.Context, fl query.Filter, dim query.Dimension) (query.Breakdown, error) {
	f.filters = append(f.filters, fl)
	f.dim = dim
	return query.Breakdown{Dimension: dim}, f.err
}

func (f *fakeEngine) ExportCSV(_ context.Context, w io.Writer, fl query.Filter) (int, error) {
	f.filters = append(f.filters, fl)
	_, _ = io.WriteString(w, strings.Join(query.ExportHeader, ",")+"\n")
	return 0, f.err
}

type fakeTracker struct {
	req service.TrackRequest
	err error
}

func (f *fakeTracker) RecordEvent(_ context.Context, req service.TrackRequest) (bool, error) {
	f.req = req
	return f.err == nil, f.err
}

type fakeTrigger struct{ triggered int }

func (f *fakeTrigger) TriggerNow() { f.triggered++ }

type testServer struct {
	router     http.Handler
	redirector *fakeRedirector
	engine     *fakeEngine
	tracker    *fakeTracker
	trigger    *fakeTrigger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{
		redirector: &fakeRedirector{},
		engine:     &fakeEngine{},
		tracker:    &fakeTracker{},
		trigger:    &fakeTrigger{},
	}
	ts.router = NewRouter(RouterConfig{
		Logger:             logger,
		Health:             NewHealthHandler(),
		Redirect:           NewRedirectHandler(ts.redirector, 1, logger),
		Analytics:          NewAnalyticsHandler(ts.engine, ts.tracker, ts.trigger, logger),
		CORSAllowedOrigins: []string{"https://dash.example.com"},
	})
	return ts
}

func (ts *testServer) do(method, target string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestRedirect_Found(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.redirector.result = service.RedirectResult{Outcome: service.OutcomeRedirect, DestinationURL: "https://play.google.com/x"}

	rec := ts.do(http.MethodGet, "/app?src=qr", nil, "User-Agent", "test-ua", "Accept-Language", "ar-SA")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://play.google.com/x", rec.Header().Get("Location"))
	assert.Equal(t, "private, no-store, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "app", ts.redirector.last.Slug)
	assert.Equal(t, int64(1), ts.redirector.last.SiteID)
	assert.Equal(t, "qr", ts.redirector.last.Source)
	assert.Equal(t, "test-ua", ts.redirector.last.UserAgent)
	assert.Equal(t, "ar-SA", ts.redirector.last.AcceptLanguage)
	assert.Equal(t, "192.0.2.1", ts.redirector.last.IP)
	assert.Empty(t, ts.redirector.last.Platform)
}

func TestRedirect_ExplicitPlatform(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.redirector.result = service.RedirectResult{Outcome: service.OutcomeRedirect, DestinationURL: "https://apps.apple.com/x"}

	rec := ts.do(http.MethodGet, "/app/ios", nil, "X-Forwarded-For", "198.51.100.7")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "ios", ts.redirector.last.Platform)
	assert.Equal(t, "198.51.100.7", ts.redirector.last.IP)
}

func TestRedirect_NotFound(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.redirector.result = service.RedirectResult{Outcome: service.OutcomeNotFound, DestinationURL: "/"}
	rec := ts.do(http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	ts.redirector.result = service.RedirectResult{Outcome: service.OutcomeNotFound}
	rec = ts.do(http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "LINK_NOT_FOUND")
}

func TestRedirect_Landing(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.redirector.result = service.RedirectResult{
		Outcome: service.OutcomeLanding,
		Link: &model.Link{
			Slug:  "app",
			Title: "App",
			URLs:  model.PlatformURLs{IOS: "https://apps.apple.com/x", Android: "https://play.google.com/x"},
		},
	}

	rec := ts.do(http.MethodGet, "/app", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LandingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "App", resp.Title)
	assert.Equal(t, []LandingButton{
		{Platform: "ios", URL: "/app/ios?src=landing"},
		{Platform: "android", URL: "/app/android?src=landing"},
	}, resp.Buttons)
}

func TestAnalytics_Summary(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/analytics/summary?range=last30days&link_id=L1&site_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var summary query.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, int64(12), summary.TotalClicks)

	require.Len(t, ts.engine.filters, 1)
	f := ts.engine.filters[0]
	assert.Equal(t, query.RangeLast30Days, f.Range)
	require.NotNil(t, f.LinkID)
	assert.Equal(t, "L1", *f.LinkID)
	require.NotNil(t, f.SiteID)
	assert.Equal(t, int64(2), *f.SiteID)
}

func TestAnalytics_FilterDefaultsAndValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/analytics/clicks?range=forever", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, query.DefaultRange, ts.engine.filters[0].Range)
	assert.Nil(t, ts.engine.filters[0].LinkID)
	assert.Nil(t, ts.engine.filters[0].SiteID)

	rec = ts.do(http.MethodGet, "/api/v1/analytics/clicks?site_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_SITE")

	rec = ts.do(http.MethodGet, "/api/v1/analytics/top-links?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/analytics/top-links?limit=25", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, ts.engine.limit)
}

func TestAnalytics_Breakdown(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/analytics/breakdown/browser", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, query.DimBrowser, ts.engine.dim)

	rec = ts.do(http.MethodGet, "/api/v1/analytics/breakdown/ip_hash", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNKNOWN_DIMENSION")
}

func TestAnalytics_EngineError(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.engine.err = errors.New("connection reset")

	rec := ts.do(http.MethodGet, "/api/v1/analytics/insights", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestAnalytics_Export(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/analytics/export.csv?range=all", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="smartlinks-analytics-all-`)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Date,Time,Smart Link Title"))
}

func TestAnalytics_TrackEvent(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	body := `{"link_id":"L1","click_type":"bogus","platform":"MAC","source":"landing","destination_url":"https://apps.apple.com/mac/x"}`
	rec := ts.do(http.MethodPost, "/api/v1/analytics/events", strings.NewReader(body), "User-Agent", "test-ua")

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"recorded":true}`, rec.Body.String())
	assert.Equal(t, "L1", ts.tracker.req.LinkID)
	assert.Equal(t, model.ClickTypeButton, ts.tracker.req.Metadata.ClickType)
	assert.Equal(t, "macos", ts.tracker.req.Metadata.Platform)
	assert.Equal(t, model.SourceLanding, ts.tracker.req.Metadata.Source)
	assert.Equal(t, "test-ua", ts.tracker.req.UserAgent)

	rec = ts.do(http.MethodPost, "/api/v1/analytics/events", strings.NewReader(`{"link_id":"L1","platform":"fallback"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "other", ts.tracker.req.Metadata.Platform)

	rec = ts.do(http.MethodPost, "/api/v1/analytics/events", strings.NewReader(`{"link_id":"L1","platform":"android"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "android", ts.tracker.req.Metadata.Platform)

	rec = ts.do(http.MethodPost, "/api/v1/analytics/events", strings.NewReader(`{"click_type":"qr"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/analytics/events", strings.NewReader(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.tracker.err = service.ErrLinkNotFound
	rec = ts.do(http.MethodPost, "/api/v1/analytics/events", strings.NewReader(`{"link_id":"nope"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalytics_RunRetention(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/analytics/retention/run", nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, ts.trigger.triggered)
}

func TestAnalytics_CORSPreflight(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodOptions, "/api/v1/analytics/summary", nil,
		"Origin", "https://dash.example.com",
		"Access-Control-Request-Method", "GET",
	)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFoundAndHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/analytics/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = ts.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/app", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
