package audit

import (
	"strings"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host's zoneinfo
)

// Named ranges accepted by the resolver, compared case-insensitively
const (
	RangeToday     = "today"
	RangeYesterday = "yesterday"
	RangeLast7Days = "last7days"
	RangeThisMonth = "thismonth"
	RangeLastMonth = "lastmonth"
)

const (
	msgInvalidNamedRange = "Invalid timeRange value. Valid values are: today, yesterday, last7days, thismonth, lastmonth"
	msgMissingBounds     = "Either timeRange or both startDate and endDate must be specified."
	msgStartAfterEnd     = "Start date must be before or equal to end date."
)

// RangeQuery is the raw time filter of an audit listing. TimeRange wins over the explicit
// bounds; TimeZone only affects date-only bounds and defaults to UTC.
type RangeQuery struct {
	TimeRange string
	StartDate *time.Time
	EndDate   *time.Time
	TimeZone  string
}

// HasRange reports whether any date-related filter is present
func (q RangeQuery) HasRange() bool {
	return strings.TrimSpace(q.TimeRange) != "" || q.StartDate != nil || q.EndDate != nil
}

// Resolver turns a RangeQuery into a closed UTC interval
type Resolver struct {
	now func() time.Time
}

// NewResolver returns a Resolver using now as its clock; nil means time.Now
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

// Resolve returns [start, end] in UTC.
//
// Named ranges are anchored on the current UTC date. Explicit bounds at midnight are whole
// days in q.TimeZone (start 00:00:00, end 23:59:59 local); bounds carrying a time of day
// are taken as UTC already.
func (r *Resolver) Resolve(q RangeQuery) (time.Time, time.Time, error) {
	if name := strings.TrimSpace(q.TimeRange); name != "" {
		return r.named(strings.ToLower(name))
	}

	if q.StartDate == nil || q.EndDate == nil {
		return time.Time{}, time.Time{}, invalidRange(msgMissingBounds)
	}

	loc, err := loadZone(q.TimeZone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	start := *q.StartDate
	if isDateOnly(start) {
		y, m, d := start.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	end := *q.EndDate
	if isDateOnly(end) {
		y, m, d := end.Date()
		end = time.Date(y, m, d, 23, 59, 59, 0, loc)
	}
	start, end = start.UTC(), end.UTC()

	if start.After(end) {
		return time.Time{}, time.Time{}, invalidRange(msgStartAfterEnd)
	}
	return start, end, nil
}

func (r *Resolver) named(name string) (time.Time, time.Time, error) {
	now := r.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	switch name {
	case RangeToday:
		return today, tomorrow.Add(-time.Second), nil
	case RangeYesterday:
		return today.AddDate(0, 0, -1), today.Add(-time.Second), nil
	case RangeLast7Days:
		return today.AddDate(0, 0, -7), tomorrow.Add(-time.Second), nil
	case RangeThisMonth:
		return firstOfMonth, firstOfMonth.AddDate(0, 1, 0).Add(-time.Second), nil
	case RangeLastMonth:
		return firstOfMonth.AddDate(0, -1, 0), firstOfMonth.Add(-time.Second), nil
	default:
		return time.Time{}, time.Time{}, invalidRange(msgInvalidNamedRange)
	}
}

// isDateOnly reports whether t has no time-of-day component
func isDateOnly(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func loadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	// "Local" would resolve to the server's own zone
	if strings.EqualFold(name, "Local") {
		return nil, invalidTimeZone(name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalidTimeZone(name)
	}
	return loc, nil
}
