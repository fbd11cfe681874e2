// Package service orchestrates link resolution, device detection and tracking.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/smartlinks/smartlinks/internal/analytics"
	"github.com/smartlinks/smartlinks/internal/cache"
	"github.com/smartlinks/smartlinks/internal/config"
	"github.com/smartlinks/smartlinks/internal/metrics"
	"github.com/smartlinks/smartlinks/internal/model"
	"github.com/smartlinks/smartlinks/internal/platform"
	"github.com/smartlinks/smartlinks/internal/repository"
)

// Service errors.
var (
	ErrLinkNotFound    = errors.New("link not found")
	ErrLinkUnavailable = errors.New("link is not enabled")
)

// Outcome is the control-flow result of a redirect.
type Outcome string

const (
	// OutcomeRedirect sends the visitor to DestinationURL.
	OutcomeRedirect Outcome = "redirect"
	// OutcomeNotFound sends the visitor to the configured not-found URL.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeLanding means the link has no usable URL for this visitor and
	// the caller should present the platform choices instead.
	OutcomeLanding Outcome = "landing"
)

// LinkRepository is the link store consumed by the orchestrator.
type LinkRepository interface {
	FindEnabledBySlug(ctx context.Context, slug string, siteID int64) (*model.Link, error)
	FindByID(ctx context.Context, id string) (*model.Link, error)
}

// LinkCache is a read-through cache in front of LinkRepository.
type LinkCache interface {
	GetLink(ctx context.Context, siteID int64, slug string) (*model.Link, error)
	SetLink(ctx context.Context, link *model.Link) error
	DeleteLink(ctx context.Context, siteID int64, slug string) error
	IsNegativelyCached(ctx context.Context, siteID int64, slug string) (bool, error)
	SetNegativeCache(ctx context.Context, siteID int64, slug string) error
}

// DeviceDetector parses a user agent.
type DeviceDetector interface {
	Detect(ctx context.Context, userAgent string) model.DeviceInfo
}

// EventRecorder persists one tracked interaction and reports success.
type EventRecorder interface {
	Record(ctx context.Context, linkID string, siteID int64, info model.DeviceInfo, in analytics.RecordInput) bool
}

// RedirectRequest carries the inbound request facts.
// Platform and Source are raw, attacker-controlled query values.
type RedirectRequest struct {
	Slug           string
	SiteID         int64
	Platform       string
	Source         string
	UserAgent      string
	IP             string
	Referrer       string
	AcceptLanguage string
}

// RedirectResult is what the transport layer acts on.
type RedirectResult struct {
	Outcome        Outcome
	DestinationURL string
	Link           *model.Link
	Device         model.DeviceInfo
	Tracked        bool
}

// RedirectOptions configures a RedirectService.
type RedirectOptions struct {
	Links    LinkRepository
	Cache    LinkCache
	Detector DeviceDetector
	Recorder EventRecorder
	Settings config.Settings
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// RedirectService resolves a slug to a destination for the requesting device.
type RedirectService struct {
	links    LinkRepository
	cache    LinkCache
	detector DeviceDetector
	recorder EventRecorder
	settings config.Settings
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewRedirectService creates a RedirectService. Cache and Recorder may be nil.
func NewRedirectService(opts RedirectOptions) *RedirectService {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RedirectService{
		links:    opts.Links,
		cache:    opts.Cache,
		detector: opts.Detector,
		recorder: opts.Recorder,
		settings: opts.Settings,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "service.redirect"),
		now:      opts.Now,
	}
}

// ResolveRedirect runs lookup, detection, platform resolution and tracking for one request.
// It never fails: lookup errors are logged and reported as OutcomeNotFound.
func (s *RedirectService) ResolveRedirect(ctx context.Context, req RedirectRequest) RedirectResult {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRedirectDuration(time.Since(start))
	}()

	link, err := s.lookupLink(ctx, req.Slug, req.SiteID)
	if err != nil {
		if !errors.Is(err, ErrLinkNotFound) && !errors.Is(err, ErrLinkUnavailable) {
			s.logger.Error("link lookup failed", "slug", req.Slug, "site_id", req.SiteID, "error", err)
		}
		s.metrics.IncRedirect(metrics.OutcomeNotFound)
		return RedirectResult{
			Outcome:        OutcomeNotFound,
			DestinationURL: s.settings.NotFoundRedirectURL,
		}
	}

	info := s.detector.Detect(ctx, req.UserAgent)
	result := RedirectResult{Link: link, Device: info}

	if info.IsBot {
		result.DestinationURL = link.URLs.Fallback
		result.Outcome = outcomeFor(result.DestinationURL)
		s.metrics.IncRedirect(metrics.OutcomeBot)
		return result
	}

	meta := model.Metadata{Source: model.ParseSource(req.Source)}
	key := model.ParsePlatformKey(req.Platform)
	if key == model.PlatformKeyAuto {
		result.DestinationURL = platform.Resolve(info.Platform, link.URLs, req.UserAgent)
		meta.Platform = string(info.Platform)
		meta.ClickType = model.ClickTypeRedirect
		if meta.Source == model.SourceQR {
			meta.ClickType = model.ClickTypeQR
		}
	} else {
		result.DestinationURL = platform.ResolveButton(key, link.URLs)
		meta.Platform = platform.AnalyticsPlatform(key)
		meta.ClickType = model.ClickTypeButton
		meta.ButtonURL = result.DestinationURL
	}

	if result.DestinationURL == "" {
		result.DestinationURL = link.URLs.Fallback
	}
	result.Outcome = outcomeFor(result.DestinationURL)
	meta.DestinationURL = result.DestinationURL

	if link.TrackAnalytics && s.settings.EnableAnalytics && s.recorder != nil {
		result.Tracked = s.recorder.Record(ctx, link.ID, link.SiteID, info, analytics.RecordInput{
			IP:             req.IP,
			UserAgent:      req.UserAgent,
			Referrer:       req.Referrer,
			AcceptLanguage: req.AcceptLanguage,
			Metadata:       meta,
			LinkSlug:       link.Slug,
			LinkTitle:      link.Title,
		})
	}

	if result.Outcome == OutcomeLanding {
		s.metrics.IncRedirect(metrics.OutcomeLanding)
	} else {
		s.metrics.IncRedirect(metrics.OutcomeRedirect)
	}
	return result
}

// TrackRequest describes an interaction reported after the fact, e.g. a landing page button.
type TrackRequest struct {
	LinkID         string
	Metadata       model.Metadata
	UserAgent      string
	IP             string
	Referrer       string
	AcceptLanguage string
}

// RecordEvent tags an interaction with a link regardless of the link's status.
// Bots and untracked links are ignored and reported as not recorded.
func (s *RedirectService) RecordEvent(ctx context.Context, req TrackRequest) (bool, error) {
	link, err := s.links.FindByID(ctx, req.LinkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return false, ErrLinkNotFound
		}
		return false, err
	}

	if !link.TrackAnalytics || !s.settings.EnableAnalytics || s.recorder == nil {
		return false, nil
	}

	info := s.detector.Detect(ctx, req.UserAgent)
	if info.IsBot {
		return false, nil
	}

	meta := req.Metadata
	if meta.ClickType == model.ClickTypeButton && meta.ButtonURL == "" {
		meta.ButtonURL = meta.DestinationURL
	}

	return s.recorder.Record(ctx, link.ID, link.SiteID, info, analytics.RecordInput{
		IP:             req.IP,
		UserAgent:      req.UserAgent,
		Referrer:       req.Referrer,
		AcceptLanguage: req.AcceptLanguage,
		Metadata:       meta,
		LinkSlug:       link.Slug,
		LinkTitle:      link.Title,
	}), nil
}

// lookupLink resolves a live link through the cache, falling back to the repository.
func (s *RedirectService) lookupLink(ctx context.Context, slug string, siteID int64) (*model.Link, error) {
	if slug == "" {
		return nil, ErrLinkNotFound
	}

	if s.cache != nil {
		cached, err := s.cache.GetLink(ctx, siteID, slug)
		if err == nil {
			s.metrics.IncRedirectCacheHit()
			return s.checkLive(ctx, cached)
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.IncRedirectCacheMiss()
			if negative, _ := s.cache.IsNegativelyCached(ctx, siteID, slug); negative {
				return nil, ErrLinkNotFound
			}
		} else {
			s.logger.Warn("link cache read failed", "error", err)
		}
	}

	link, err := s.links.FindEnabledBySlug(ctx, slug, siteID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			if s.cache != nil {
				_ = s.cache.SetNegativeCache(ctx, siteID, slug)
			}
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetLink(ctx, link); err != nil {
			s.logger.Warn("link cache write failed", "error", err)
		}
	}
	return s.checkLive(ctx, link)
}

// checkLive rejects links that are disabled, pending or expired right now.
func (s *RedirectService) checkLive(ctx context.Context, link *model.Link) (*model.Link, error) {
	switch link.StatusAt(s.now()) {
	case model.LinkStatusEnabled:
		return link, nil
	case model.LinkStatusExpired, model.LinkStatusDisabled:
		if s.cache != nil {
			_ = s.cache.DeleteLink(ctx, link.SiteID, link.Slug)
		}
	}
	return nil, ErrLinkUnavailable
}

func outcomeFor(destination string) Outcome {
	if destination == "" {
		return OutcomeLanding
	}
	return OutcomeRedirect
}
