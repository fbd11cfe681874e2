package query

import (
	"context"
	"fmt"

	"github.com/smartlinks/smartlinks/internal/model"
)

// NoDataLabel is the single placeholder bucket returned for empty sentinel breakdowns.
const NoDataLabel = "No data yet"

// sentinelDimensions return a NoDataLabel bucket instead of an empty list.
var sentinelDimensions = map[Dimension]bool{
	DimDeviceType: true,
	DimOS:         true,
	DimBrowser:    true,
}

// BreakdownItem is one bucket of a categorical breakdown.
type BreakdownItem struct {
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Breakdown is a categorical distribution. Empty is set when no events matched,
// whether or not a placeholder bucket is present.
type Breakdown struct {
	Dimension Dimension       `json:"dimension"`
	Total     int64           `json:"total"`
	Empty     bool            `json:"empty"`
	Items     []BreakdownItem `json:"items"`
}

// Percentage returns count/total*100 rounded half-up to one decimal.
// A zero total yields 0.
func Percentage(count, total int64) float64 {
	if total <= 0 || count <= 0 {
		return 0
	}
	tenths := (count*2000 + total) / (2 * total)
	return float64(tenths) / 10
}

// Breakdown groups events by dim.
func (e *Engine) Breakdown(ctx context.Context, f Filter, dim Dimension) (Breakdown, error) {
	if !dim.Valid() {
		return Breakdown{}, fmt.Errorf("unknown dimension %q", dim)
	}
	rows, err := e.source.CountBy(ctx, e.Criteria(f), dim)
	if err != nil {
		return Breakdown{}, fmt.Errorf("breakdown by %s: %w", dim, err)
	}
	return newBreakdown(dim, rows), nil
}

func newBreakdown(dim Dimension, rows []GroupCount) Breakdown {
	b := Breakdown{Dimension: dim, Items: make([]BreakdownItem, 0, len(rows))}
	for _, r := range rows {
		b.Total += r.Count
	}
	if b.Total == 0 {
		b.Empty = true
		if sentinelDimensions[dim] {
			b.Items = append(b.Items, BreakdownItem{Label: NoDataLabel})
		}
		return b
	}
	for _, r := range rows {
		b.Items = append(b.Items, BreakdownItem{
			Label:      r.Key,
			Count:      r.Count,
			Percentage: Percentage(r.Count, b.Total),
		})
	}
	return b
}

// Summary is the headline counts for a filter.
type Summary struct {
	TotalClicks    int64            `json:"total_clicks"`
	UniqueVisitors int64            `json:"unique_visitors"`
	QRScans        int64            `json:"qr_scans"`
	DirectVisits   int64            `json:"direct_visits"`
	Sources        map[string]int64 `json:"sources"`
	ClickTypes     map[string]int64 `json:"click_types"`
}

// Summary returns headline counts. UniqueVisitors counts distinct IP hashes; since every
// event is salted independently it tracks TotalClicks.
func (e *Engine) Summary(ctx context.Context, f Filter) (Summary, error) {
	c := e.Criteria(f)
	totals, err := e.source.Totals(ctx, c)
	if err != nil {
		return Summary{}, fmt.Errorf("summary totals: %w", err)
	}
	sources, err := e.source.CountBy(ctx, c, DimSource)
	if err != nil {
		return Summary{}, fmt.Errorf("summary sources: %w", err)
	}
	types, err := e.source.CountBy(ctx, c, DimClickType)
	if err != nil {
		return Summary{}, fmt.Errorf("summary click types: %w", err)
	}

	s := Summary{
		TotalClicks:    totals.Events,
		UniqueVisitors: totals.Unique,
		Sources:        toMap(sources),
		ClickTypes:     toMap(types),
	}
	s.QRScans = s.Sources[string(model.SourceQR)]
	s.DirectVisits = s.Sources[string(model.SourceDirect)]
	return s, nil
}

func toMap(rows []GroupCount) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Key] += r.Count
	}
	return m
}
