package query

import (
	"strings"
	"time"
)

// DateRange is a named reporting window.
type DateRange string

const (
	RangeToday      DateRange = "today"
	RangeYesterday  DateRange = "yesterday"
	RangeLast7Days  DateRange = "last7days"
	RangeLast30Days DateRange = "last30days"
	RangeLast90Days DateRange = "last90days"
	RangeAll        DateRange = "all"
)

// DefaultRange is used for unknown or empty labels.
const DefaultRange = RangeLast7Days

// ParseDateRange normalizes a label. Unknown labels become DefaultRange.
func ParseDateRange(raw string) DateRange {
	switch r := DateRange(strings.ToLower(strings.TrimSpace(raw))); r {
	case RangeToday, RangeYesterday, RangeLast7Days, RangeLast30Days, RangeLast90Days, RangeAll:
		return r
	default:
		return DefaultRange
	}
}

// ResolveRange maps a label to its bounds in now's location.
// today and yesterday cover the whole calendar day, 00:00:00 through 23:59:59.
// Rolling windows end at now. all is unbounded: both results are nil.
func ResolveRange(r DateRange, now time.Time) (start, end *time.Time) {
	switch ParseDateRange(string(r)) {
	case RangeToday:
		return dayBounds(now)
	case RangeYesterday:
		return dayBounds(now.AddDate(0, 0, -1))
	case RangeLast30Days:
		return rolling(now, 30)
	case RangeLast90Days:
		return rolling(now, 90)
	case RangeAll:
		return nil, nil
	default:
		return rolling(now, 7)
	}
}

func dayBounds(t time.Time) (*time.Time, *time.Time) {
	y, m, d := t.Date()
	s := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	e := time.Date(y, m, d, 23, 59, 59, 0, t.Location())
	return &s, &e
}

func rolling(now time.Time, days int) (*time.Time, *time.Time) {
	s := now.AddDate(0, 0, -days)
	e := now
	return &s, &e
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar day boundaries crossed from start to end.
func daysBetween(start, end time.Time) int {
	s := startOfDay(start)
	e := startOfDay(end.In(start.Location()))
	n := 0
	for d := s; d.Before(e); d = s.AddDate(0, 0, n) {
		n++
	}
	return n
}
