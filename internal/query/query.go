// Package query aggregates stored analytics into chart and report data.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartlinks/smartlinks/internal/config"
	"github.com/smartlinks/smartlinks/internal/model"
)

// Filter narrows every query. Nil pointers mean "any".
type Filter struct {
	LinkID *string
	SiteID *int64
	Range  DateRange
}

// Criteria is a Filter with its date range resolved.
// TimeZone names the location used for day and hour grouping.
type Criteria struct {
	LinkID   *string
	SiteID   *int64
	Start    *time.Time
	End      *time.Time
	TimeZone string
}

// Dimension is a groupable analytics attribute.
type Dimension string

const (
	DimDeviceType  Dimension = "device_type"
	DimOS          Dimension = "os"
	DimBrowser     Dimension = "browser"
	DimDeviceBrand Dimension = "device_brand"
	DimPlatform    Dimension = "platform"
	DimCountry     Dimension = "country"
	DimCity        Dimension = "city"
	DimLanguage    Dimension = "language"
	DimSource      Dimension = "source"
	DimClickType   Dimension = "click_type"
)

// Dimensions lists every supported Dimension.
var Dimensions = []Dimension{
	DimDeviceType, DimOS, DimBrowser, DimDeviceBrand, DimPlatform,
	DimCountry, DimCity, DimLanguage, DimSource, DimClickType,
}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	for _, known := range Dimensions {
		if d == known {
			return true
		}
	}
	return false
}

// GroupCount is one row of a grouped count, ordered by Count descending.
type GroupCount struct {
	Key   string
	Count int64
}

// PairCount is one row of a two-dimensional grouped count.
type PairCount struct {
	First  string
	Second string
	Count  int64
}

// DayCount is the number of events on one calendar day, formatted YYYY-MM-DD.
type DayCount struct {
	Day   string
	Count int64
}

// HourCount is the number of events in one hour of the day.
type HourCount struct {
	Hour  int
	Count int64
}

// LinkCount is the number of events attributed to one link.
type LinkCount struct {
	Link  model.Link
	Count int64
}

// Totals holds overall counts for a Criteria.
type Totals struct {
	Events int64
	Unique int64
}

// ExportRecord is one analytics event joined with its link.
type ExportRecord struct {
	Event model.AnalyticsEvent
	Link  model.Link
}

// Source runs grouped reads against the analytics store.
// Grouped results exclude empty keys and are ordered by count descending.
type Source interface {
	Totals(ctx context.Context, c Criteria) (Totals, error)
	CountBy(ctx context.Context, c Criteria, dim Dimension) ([]GroupCount, error)
	CountByPair(ctx context.Context, c Criteria, first, second Dimension) ([]PairCount, error)
	CountByDay(ctx context.Context, c Criteria) ([]DayCount, error)
	CountByHour(ctx context.Context, c Criteria) ([]HourCount, error)
	CountByLink(ctx context.Context, c Criteria) ([]LinkCount, error)
	FirstEventAt(ctx context.Context, c Criteria) (*time.Time, error)
	LastEvent(ctx context.Context, c Criteria, linkID string) (*model.AnalyticsEvent, error)
	ExportEvents(ctx context.Context, c Criteria, fn func(ExportRecord) error) error
}

// Options configures an Engine. BaseURL prefixes slugs in exported link URLs.
// Location defines calendar days and hours; it defaults to UTC.
type Options struct {
	Source   Source
	Settings config.Settings
	BaseURL  string
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// Engine answers read-only analytics queries.
type Engine struct {
	source   Source
	settings config.Settings
	baseURL  string
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		source:   opts.Source,
		settings: opts.Settings,
		baseURL:  opts.BaseURL,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "query.engine")
	return e
}

// Criteria resolves f against the current time.
func (e *Engine) Criteria(f Filter) Criteria {
	start, end := ResolveRange(f.Range, e.now().In(e.loc))
	return Criteria{
		LinkID:   f.LinkID,
		SiteID:   f.SiteID,
		Start:    start,
		End:      end,
		TimeZone: e.loc.String(),
	}
}
