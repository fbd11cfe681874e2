package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/smartlinks/smartlinks/internal/config"
	"github.com/smartlinks/smartlinks/internal/device"
	"github.com/smartlinks/smartlinks/internal/metrics"
	"github.com/smartlinks/smartlinks/internal/model"
)

// PurgeBatchSize is the number of rows removed per retention delete.
const PurgeBatchSize = 1000

// Event sink event types.
const (
	EventTypeClick = "smart_link_click"
	EventTypeScan  = "smart_link_scan"
)

// Purger is the repository capability behind deletes and retention.
type Purger interface {
	DeleteForLink(ctx context.Context, linkID string) (int64, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Locator resolves an IP to a location; nil means unknown.
type Locator interface {
	Locate(ctx context.Context, ip string) *model.GeoResult
}

// EventSink forwards recorded events to a third party.
type EventSink interface {
	PushEvent(ctx context.Context, eventType string, payload map[string]any) bool
}

// RecordInput carries the request facts that accompany a tracked interaction.
type RecordInput struct {
	IP             string
	UserAgent      string
	Referrer       string
	AcceptLanguage string
	Metadata       model.Metadata
	// LinkSlug and LinkTitle only enrich the event sink payload.
	LinkSlug  string
	LinkTitle string
}

// StoreOptions configures a Store.
type StoreOptions struct {
	Writer   Writer
	Purger   Purger
	Locator  Locator
	Sink     EventSink
	Settings config.Settings
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Store records analytics events and removes them on link deletion or expiry.
type Store struct {
	writer   Writer
	purger   Purger
	locator  Locator
	sink     EventSink
	settings config.Settings
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates a Store.
func NewStore(opts StoreOptions) *Store {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		writer:   opts.Writer,
		purger:   opts.Purger,
		locator:  opts.Locator,
		sink:     opts.Sink,
		settings: opts.Settings,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "analytics.store"),
		now:      opts.Now,
	}
}

// Record builds and persists one event. It reports success and never returns
// an error: a failed write is logged and must not affect the redirect.
func (s *Store) Record(ctx context.Context, linkID string, siteID int64, info model.DeviceInfo, in RecordInput) bool {
	event, err := s.buildEvent(ctx, linkID, siteID, info, in)
	if err != nil {
		s.logger.Error("failed to build analytics event", "link_id", linkID, "error", err)
		s.metrics.IncAnalyticsWrite("failed")
		return false
	}

	if err := s.writer.Write(ctx, event); err != nil {
		s.logger.Error("failed to save analytics", "link_id", linkID, "event_id", event.ID, "error", err)
		s.metrics.IncAnalyticsWrite("failed")
		return false
	}
	s.metrics.IncAnalyticsWrite("success")

	if s.sink != nil {
		eventType := EventTypeClick
		if event.Metadata.Source == model.SourceQR || event.Metadata.ClickType == model.ClickTypeQR {
			eventType = EventTypeScan
		}
		payload := SinkPayload(event, in)
		go s.sink.PushEvent(context.WithoutCancel(ctx), eventType, payload)
	}
	return true
}

func (s *Store) buildEvent(ctx context.Context, linkID string, siteID int64, info model.DeviceInfo, in RecordInput) (*model.AnalyticsEvent, error) {
	ua := in.UserAgent
	if ua == "" {
		ua = info.UserAgent
	}

	event := &model.AnalyticsEvent{
		ID:        ulid.Make().String(),
		LinkID:    linkID,
		SiteID:    siteID,
		Referrer:  SanitizeReferrer(in.Referrer),
		UserAgent: TruncateUserAgent(ua),
		Metadata:  in.Metadata,
		CreatedAt: s.now().UTC(),
	}
	if event.Metadata.Source == "" {
		event.Metadata.Source = model.SourceDirect
	}
	if event.Metadata.ClickType == "" {
		event.Metadata.ClickType = model.ClickTypeRedirect
	}
	event.ApplyDevice(info)
	for _, field := range []*string{
		&event.DeviceBrand, &event.DeviceModel, &event.OSName, &event.OSVersion,
		&event.BrowserName, &event.BrowserVersion, &event.BotName,
	} {
		*field = storableText(*field, maxMetaLength)
	}

	if in.IP != "" {
		hash, err := HashIP(in.IP)
		if err != nil {
			return nil, fmt.Errorf("hash ip: %w", err)
		}
		event.IPHash = hash
	}

	var geo *model.GeoResult
	if s.settings.EnableGeoDetection && in.IP != "" && s.locator != nil {
		geo = s.locator.Locate(ctx, in.IP)
		event.ApplyGeo(geo)
	}

	if event.Language == "" {
		countryCode := ""
		if geo != nil {
			countryCode = geo.CountryCode
		}
		event.Language = device.DetectLanguage(in.AcceptLanguage, countryCode, s.settings.LanguageDetectionMethod)
	}

	return event, nil
}

// DeleteForLink removes every event of a link.
func (s *Store) DeleteForLink(ctx context.Context, linkID string) (int64, error) {
	n, err := s.purger.DeleteForLink(ctx, linkID)
	if err != nil {
		return 0, fmt.Errorf("delete analytics for link %s: %w", linkID, err)
	}
	s.logger.Info("deleted analytics for link", "link_id", linkID, "rows", n)
	return n, nil
}

// PurgeOlderThan deletes events created before cutoff in batches of
// PurgeBatchSize until none remain, reporting progress after each batch.
// Running it twice in a row deletes nothing the second time.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time, progress func(deleted, total int64)) (int64, error) {
	total, err := s.purger.CountOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("count expired analytics: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	var deleted int64
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		n, err := s.purger.DeleteOlderThan(ctx, cutoff, PurgeBatchSize)
		if err != nil {
			return deleted, fmt.Errorf("delete expired analytics: %w", err)
		}
		deleted += n
		s.metrics.AddRetentionPurged(n)
		if progress != nil {
			progress(deleted, max(total, deleted))
		}
		if n < PurgeBatchSize {
			return deleted, nil
		}
	}
}

// SinkPayload formats an event for the third-party sink.
func SinkPayload(event *model.AnalyticsEvent, in RecordInput) map[string]any {
	payload := map[string]any{
		"event_id":        event.ID,
		"link_id":         event.LinkID,
		"site_id":         event.SiteID,
		"slug":            in.LinkSlug,
		"title":           in.LinkTitle,
		"click_type":      string(event.Metadata.ClickType),
		"source":          string(event.Metadata.Source),
		"platform":        event.Metadata.Platform,
		"destination_url": event.Metadata.DestinationURL,
		"device_type":     event.DeviceType,
		"os":              event.OSName,
		"browser":         event.BrowserName,
		"language":        event.Language,
		"timestamp":       event.CreatedAt.Format(time.RFC3339),
	}
	if event.Country != nil {
		payload["country"] = *event.Country
	}
	if event.City != nil {
		payload["city"] = *event.City
	}
	return payload
}
