package audit_test

import (
	"errors"
	"testing"
	"time"

	"github.com/usermanagement/usermanagement/internal/audit"
)

// fixedNow is mid-afternoon on a Friday, before the 2025 US DST switch
var fixedNow = time.Date(2025, 3, 14, 15, 4, 5, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestResolve_NamedRanges(t *testing.T) {
	tests := []struct {
		name      string
		timeRange string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"today", "today",
			time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)},
		{"yesterday", "yesterday",
			time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 13, 23, 59, 59, 0, time.UTC)},
		{"last 7 days includes today", "last7days",
			time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)},
		{"this month", "thismonth",
			time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)},
		{"last month", "lastmonth",
			time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC)},
		{"case insensitive", "ToDaY",
			time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)},
	}

	r := audit.NewResolver(fixedClock)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := r.Resolve(audit.RangeQuery{TimeRange: tt.timeRange})
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("Resolve() = [%v, %v], want [%v, %v]", start, end, tt.wantStart, tt.wantEnd)
			}
			if start.Location() != time.UTC || end.Location() != time.UTC {
				t.Error("bounds must be in UTC")
			}
		})
	}
}

func TestResolve_TodaySpansOneSecondShortOfADay(t *testing.T) {
	start, end, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{TimeRange: "today"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got := end.Sub(start); got != 86399*time.Second {
		t.Errorf("end-start = %v, want 86399s", got)
	}
}

func TestResolve_LastMonthAcrossYearBoundary(t *testing.T) {
	jan := func() time.Time { return time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC) }
	start, end, err := audit.NewResolver(jan).Resolve(audit.RangeQuery{TimeRange: "lastmonth"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if want := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
}

func TestResolve_NamedRangeWinsOverBounds(t *testing.T) {
	q := audit.RangeQuery{
		TimeRange: "yesterday",
		StartDate: day(2020, 1, 1),
		EndDate:   day(2020, 1, 2),
		TimeZone:  "Not/AZone",
	}
	start, _, err := audit.NewResolver(fixedClock).Resolve(q)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if want := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestResolve_UnknownNamedRange(t *testing.T) {
	_, _, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{TimeRange: "lastyear"})
	if !errors.Is(err, audit.ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
	want := "Invalid timeRange value. Valid values are: today, yesterday, last7days, thismonth, lastmonth"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestResolve_MissingBounds(t *testing.T) {
	cases := map[string]audit.RangeQuery{
		"nothing":    {},
		"start only": {StartDate: day(2025, 3, 1)},
		"end only":   {EndDate: day(2025, 3, 1)},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := audit.NewResolver(fixedClock).Resolve(q)
			if !errors.Is(err, audit.ErrInvalidRange) {
				t.Fatalf("err = %v, want ErrInvalidRange", err)
			}
			if err.Error() != "Either timeRange or both startDate and endDate must be specified." {
				t.Errorf("message = %q", err.Error())
			}
		})
	}
}

func TestResolve_DateOnlyBoundsInUTC(t *testing.T) {
	for _, zone := range []string{"", "UTC", "utc"} {
		start, end, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{
			StartDate: day(2025, 3, 1),
			EndDate:   day(2025, 3, 2),
			TimeZone:  zone,
		})
		if err != nil {
			t.Fatalf("zone %q: Resolve() error: %v", zone, err)
		}
		if want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
			t.Errorf("zone %q: start = %v, want %v", zone, start, want)
		}
		if want := time.Date(2025, 3, 2, 23, 59, 59, 0, time.UTC); !end.Equal(want) {
			t.Errorf("zone %q: end = %v, want %v", zone, end, want)
		}
	}
}

func TestResolve_DateOnlyBoundsInLocalZone(t *testing.T) {
	start, end, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{
		StartDate: day(2025, 3, 1),
		EndDate:   day(2025, 3, 2),
		TimeZone:  "America/New_York",
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	// EST is UTC-5 until 2025-03-09
	if want := time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2025, 3, 3, 4, 59, 59, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
	if start.Location() != time.UTC || end.Location() != time.UTC {
		t.Error("bounds must be converted to UTC")
	}
}

func TestResolve_TimestampsPassThrough(t *testing.T) {
	start, end, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{
		StartDate: ts("2025-03-01T10:30:00Z"),
		EndDate:   ts("2025-03-01T18:45:00Z"),
		TimeZone:  "Asia/Tokyo",
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !start.Equal(*ts("2025-03-01T10:30:00Z")) || !end.Equal(*ts("2025-03-01T18:45:00Z")) {
		t.Errorf("Resolve() = [%v, %v], want bounds unchanged", start, end)
	}
}

func TestResolve_SameDayIsValid(t *testing.T) {
	start, end, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{
		StartDate: day(2025, 3, 5),
		EndDate:   day(2025, 3, 5),
	})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got := end.Sub(start); got != 86399*time.Second {
		t.Errorf("end-start = %v, want 86399s", got)
	}
}

func TestResolve_StartAfterEnd(t *testing.T) {
	_, _, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{
		StartDate: day(2025, 3, 5),
		EndDate:   day(2025, 3, 4),
	})
	if !errors.Is(err, audit.ErrInvalidRange) {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
	if err.Error() != "Start date must be before or equal to end date." {
		t.Errorf("message = %q", err.Error())
	}
}

func TestResolve_InvalidTimeZone(t *testing.T) {
	_, _, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{
		StartDate: day(2025, 3, 1),
		EndDate:   day(2025, 3, 2),
		TimeZone:  "Mars/Olympus_Mons",
	})
	if !errors.Is(err, audit.ErrInvalidTimeZone) {
		t.Fatalf("err = %v, want ErrInvalidTimeZone", err)
	}
	if err.Error() != "Invalid time zone: Mars/Olympus_Mons" {
		t.Errorf("message = %q", err.Error())
	}
	if !audit.IsValidation(err) {
		t.Error("IsValidation() = false, want true")
	}
}

func TestResolve_LocalZoneRejected(t *testing.T) {
	for _, zone := range []string{"Local", "local"} {
		_, _, err := audit.NewResolver(fixedClock).Resolve(audit.RangeQuery{
			StartDate: day(2025, 3, 1),
			EndDate:   day(2025, 3, 2),
			TimeZone:  zone,
		})
		if !errors.Is(err, audit.ErrInvalidTimeZone) {
			t.Errorf("zone %q: err = %v, want ErrInvalidTimeZone", zone, err)
		}
	}
}

func TestIsValidation(t *testing.T) {
	if audit.IsValidation(errors.New("db down")) {
		t.Error("IsValidation(plain error) = true")
	}
	if audit.IsValidation(nil) {
		t.Error("IsValidation(nil) = true")
	}
}

func TestRangeQuery_HasRange(t *testing.T) {
	cases := []struct {
		q    audit.RangeQuery
		want bool
	}{
		{audit.RangeQuery{}, false},
		{audit.RangeQuery{TimeZone: "Europe/Berlin"}, false},
		{audit.RangeQuery{TimeRange: "  "}, false},
		{audit.RangeQuery{TimeRange: "today"}, true},
		{audit.RangeQuery{StartDate: day(2025, 1, 1)}, true},
		{audit.RangeQuery{EndDate: day(2025, 1, 1)}, true},
	}
	for i, c := range cases {
		if got := c.q.HasRange(); got != c.want {
			t.Errorf("case %d: HasRange() = %v, want %v", i, got, c.want)
		}
	}
}
