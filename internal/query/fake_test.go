package query

import (
	"context"
	"time"

	"github.com/smartlinks/smartlinks/internal/model"
)

// fakeSource returns canned rows and records the criteria it was asked for.
type fakeSource struct {
	totals  Totals
	groups  map[Dimension][]GroupCount
	pairs   map[[2]Dimension][]PairCount
	days    []DayCount
	hours   []HourCount
	links   []LinkCount
	first   *time.Time
	last    map[string]*model.AnalyticsEvent
	records []ExportRecord
	err     error

	criteria []Criteria
}

func (f *fakeSource) seen(c Criteria) { f.criteria = append(f.criteria, c) }

func (f *fakeSource) Totals(_ context.Context, c Criteria) (Totals, error) {
	f.seen(c)
	return f.totals, f.err
}

func (f *fakeSource) CountBy(_ context.Context, c Criteria, dim Dimension) ([]GroupCount, error) {
	f.seen(c)
	return f.groups[dim], f.err
}

func (f *fakeSource) CountByPair(_ context.Context, c Criteria, first, second Dimension) ([]PairCount, error) {
	f.seen(c)
	return f.pairs[[2]Dimension{first, second}], f.err
}

func (f *fakeSource) CountByDay(_ context.Context, c Criteria) ([]DayCount, error) {
	f.seen(c)
	return f.days, f.err
}

func (f *fakeSource) CountByHour(_ context.Context, c Criteria) ([]HourCount, error) {
	f.seen(c)
	return f.hours, f.err
}

func (f *fakeSource) CountByLink(_ context.Context, c Criteria) ([]LinkCount, error) {
	f.seen(c)
	return f.links, f.err
}

func (f *fakeSource) FirstEventAt(_ context.Context, c Criteria) (*time.Time, error) {
	f.seen(c)
	return f.first, f.err
}

func (f *fakeSource) LastEvent(_ context.Context, c Criteria, linkID string) (*model.AnalyticsEvent, error) {
	f.seen(c)
	return f.last[linkID], f.err
}

func (f *fakeSource) ExportEvents(_ context.Context, c Criteria, fn func(ExportRecord) error) error {
	f.seen(c)
	if f.err != nil {
		return f.err
	}
	for _, r := range f.records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

var fixedNow = time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)

func newTestEngine(src Source, opts Options) *Engine {
	opts.Source = src
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewEngine(opts)
}

func strPtr(s string) *string { return &s }
