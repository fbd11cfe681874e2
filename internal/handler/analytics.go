package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/smartlinks/smartlinks/internal/middleware"
	"github.com/smartlinks/smartlinks/internal/model"
	"github.com/smartlinks/smartlinks/internal/platform"
	"github.com/smartlinks/smartlinks/internal/query"
	"github.com/smartlinks/smartlinks/internal/service"
)

// maxEventBody bounds POST /events payloads.
const maxEventBody = 4 << 10

// QueryEngine answers the analytics read API.
type QueryEngine interface {
	Summary(ctx context.Context, f query.Filter) (query.Summary, error)
	ClicksData(ctx context.Context, f query.Filter) (query.ClicksData, error)
	HourlyClicks(ctx context.Context, f query.Filter) (query.Hourly, error)
	TopLinks(ctx context.Context, f query.Filter, limit int) ([]query.TopLink, error)
	Insights(ctx context.Context, f query.Filter) (query.Insights, error)
	Breakdown(ctx context.Context, f query.Filter, dim query.Dimension) (query.Breakdown, error)
	ExportCSV(ctx context.Context, w io.Writer, f query.Filter) (int, error)
}

// EventTracker records interactions reported by landing pages.
type EventTracker interface {
	RecordEvent(ctx context.Context, req service.TrackRequest) (bool, error)
}

// RetentionTrigger starts an out-of-schedule retention sweep.
type RetentionTrigger interface {
	TriggerNow()
}

// AnalyticsHandler handles analytics API requests.
type AnalyticsHandler struct {
	engine    QueryEngine
	tracker   EventTracker
	retention RetentionTrigger
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnalyticsHandler creates a new AnalyticsHandler. tracker and retention may be nil.
func NewAnalyticsHandler(engine QueryEngine, tracker EventTracker, retention RetentionTrigger, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		engine:    engine,
		tracker:   tracker,
		retention: retention,
		logger:    logger.With("component", "handler.analytics"),
		now:       time.Now,
	}
}

// Routes mounts the analytics API.
func (h *AnalyticsHandler) Routes(r chi.Router) {
	r.Get("/summary", h.Summary)
	r.Get("/clicks", h.Clicks)
	r.Get("/hourly", h.Hourly)
	r.Get("/top-links", h.TopLinks)
	r.Get("/insights", h.Insights)
	r.Get("/breakdown/{dimension}", h.Breakdown)
	r.Get("/export.csv", h.Export)
	r.Post("/events", h.TrackEvent)
	r.Post("/retention/run", h.RunRetention)
}

// Summary handles GET /summary.
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	summary, err := h.engine.Summary(r.Context(), f)
	h.respond(w, r, "summary", summary, err)
}

// Clicks handles GET /clicks: zero-filled clicks per day.
func (h *AnalyticsHandler) Clicks(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	data, err := h.engine.ClicksData(r.Context(), f)
	h.respond(w, r, "clicks", data, err)
}

// Hourly handles GET /hourly.
func (h *AnalyticsHandler) Hourly(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	data, err := h.engine.HourlyClicks(r.Context(), f)
	h.respond(w, r, "hourly", data, err)
}

// TopLinks handles GET /top-links?limit=N.
func (h *AnalyticsHandler) TopLinks(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	limit := query.DefaultTopLinks
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	links, err := h.engine.TopLinks(r.Context(), f, limit)
	h.respond(w, r, "top-links", links, err)
}

// Insights handles GET /insights.
func (h *AnalyticsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	insights, err := h.engine.Insights(r.Context(), f)
	h.respond(w, r, "insights", insights, err)
}

// Breakdown handles GET /breakdown/{dimension}.
func (h *AnalyticsHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	dim := query.Dimension(chi.URLParam(r, "dimension"))
	if !dim.Valid() {
		writeError(w, http.StatusNotFound, "UNKNOWN_DIMENSION", fmt.Sprintf("unknown dimension %q", dim))
		return
	}
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	breakdown, err := h.engine.Breakdown(r.Context(), f, dim)
	h.respond(w, r, "breakdown", breakdown, err)
}

// Export handles GET /export.csv and streams the CSV body.
func (h *AnalyticsHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	filename := fmt.Sprintf("smartlinks-analytics-%s-%s.csv", f.Range, h.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	rows, err := h.engine.ExportCSV(r.Context(), w, f)
	if err != nil {
		// Headers are already sent; the truncated body is all the client gets.
		h.logger.Error("analytics export failed",
			"rows_written", rows,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
}

// TrackEventRequest is the body of POST /events.
type TrackEventRequest struct {
	LinkID         string `json:"link_id"`
	ClickType      string `json:"click_type"`
	Platform       string `json:"platform"`
	Source         string `json:"source"`
	DestinationURL string `json:"destination_url"`
}

// TrackEvent handles POST /events for interactions that never hit the redirect route.
func (h *AnalyticsHandler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "event tracking is not enabled")
		return
	}

	var req TrackEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.LinkID) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "link_id is required")
		return
	}

	clickType := model.ClickType(req.ClickType)
	switch clickType {
	case model.ClickTypeRedirect, model.ClickTypeButton, model.ClickTypeQR:
	default:
		clickType = model.ClickTypeButton
	}
	key := model.ParsePlatformKey(req.Platform)
	platformName := ""
	if key != model.PlatformKeyAuto {
		platformName = platform.AnalyticsPlatform(key)
	}

	recorded, err := h.tracker.RecordEvent(r.Context(), service.TrackRequest{
		LinkID: req.LinkID,
		Metadata: model.Metadata{
			ClickType:      clickType,
			Platform:       platformName,
			Source:         model.ParseSource(req.Source),
			DestinationURL: req.DestinationURL,
		},
		UserAgent:      r.UserAgent(),
		IP:             middleware.ClientIP(r),
		Referrer:       r.Referer(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	})
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
			return
		}
		h.logger.Error("event tracking failed", "link_id", req.LinkID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record event")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"recorded": recorded})
}

// RunRetention handles POST /retention/run.
func (h *AnalyticsHandler) RunRetention(w http.ResponseWriter, r *http.Request) {
	if h.retention == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "retention is not scheduled")
		return
	}
	h.retention.TriggerNow()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// filter parses range, link_id and site_id. Unknown ranges fall back to the default.
func (h *AnalyticsHandler) filter(w http.ResponseWriter, r *http.Request) (query.Filter, bool) {
	q := r.URL.Query()
	f := query.Filter{Range: query.ParseDateRange(q.Get("range"))}

	if linkID := strings.TrimSpace(q.Get("link_id")); linkID != "" {
		f.LinkID = &linkID
	}
	if raw := q.Get("site_id"); raw != "" {
		siteID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || siteID < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_SITE", "site_id must be a positive integer")
			return query.Filter{}, false
		}
		f.SiteID = &siteID
	}
	return f, true
}

func (h *AnalyticsHandler) respond(w http.ResponseWriter, r *http.Request, kind string, data any, err error) {
	if err != nil {
		h.logger.Error("analytics query failed",
			"kind", kind,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch analytics")
		return
	}
	writeJSON(w, http.StatusOK, data)
}
