package query

import (
	"context"
	"fmt"
	"time"
)

// DayLayout formats daily labels.
const DayLayout = "2006-01-02"

// ClicksData is a daily series with one entry per calendar day of the range.
type ClicksData struct {
	Labels []string `json:"labels"`
	Values []int64  `json:"values"`
}

// ClicksData returns daily counts, zero-filling days without events.
// For RangeAll the series starts on the day of the first matching event, or today.
func (e *Engine) ClicksData(ctx context.Context, f Filter) (ClicksData, error) {
	c := e.Criteria(f)
	now := e.now().In(e.loc)

	start, end := now, now
	if c.Start != nil {
		start, end = *c.Start, *c.End
	} else {
		first, err := e.source.FirstEventAt(ctx, c)
		if err != nil {
			return ClicksData{}, fmt.Errorf("first event: %w", err)
		}
		if first != nil && first.Before(now) {
			start = first.In(e.loc)
		}
	}

	rows, err := e.source.CountByDay(ctx, c)
	if err != nil {
		return ClicksData{}, fmt.Errorf("clicks by day: %w", err)
	}
	return zeroFill(start.In(e.loc), end.In(e.loc), rows), nil
}

// zeroFill lays rows over every day from start to end inclusive.
func zeroFill(start, end time.Time, rows []DayCount) ClicksData {
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Day] += r.Count
	}

	n := daysBetween(start, end) + 1
	out := ClicksData{Labels: make([]string, 0, n), Values: make([]int64, 0, n)}
	first := startOfDay(start)
	for i := 0; i < n; i++ {
		label := first.AddDate(0, 0, i).Format(DayLayout)
		out.Labels = append(out.Labels, label)
		out.Values = append(out.Values, counts[label])
	}
	return out
}

// Hourly is the distribution of events over the 24 hours of the day.
type Hourly struct {
	Labels    []string `json:"labels"`
	Values    []int64  `json:"values"`
	PeakHour  int      `json:"peak_hour"`
	PeakCount int64    `json:"peak_count"`
}

// HourlyClicks groups events by hour of day across the whole range.
// PeakHour is the busiest hour; ties go to the earliest hour.
func (e *Engine) HourlyClicks(ctx context.Context, f Filter) (Hourly, error) {
	rows, err := e.source.CountByHour(ctx, e.Criteria(f))
	if err != nil {
		return Hourly{}, fmt.Errorf("clicks by hour: %w", err)
	}
	return newHourly(rows), nil
}

func newHourly(rows []HourCount) Hourly {
	h := Hourly{Labels: make([]string, 24), Values: make([]int64, 24)}
	for i := range h.Labels {
		h.Labels[i] = fmt.Sprintf("%02d:00", i)
	}
	for _, r := range rows {
		if r.Hour >= 0 && r.Hour < 24 {
			h.Values[r.Hour] += r.Count
		}
	}
	for i, v := range h.Values {
		if v > h.PeakCount {
			h.PeakHour, h.PeakCount = i, v
		}
	}
	return h
}
