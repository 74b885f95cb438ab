package insights

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hidroops/represas-insights/internal/apperr"
)

const dateLayout = "2006-01-02"

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DateRange is a validated, inclusive range of UTC calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
	Days  int
}

// StartDate returns the start as YYYY-MM-DD.
func (r DateRange) StartDate() string { return r.Start.Format(dateLayout) }

// EndDate returns the end as YYYY-MM-DD.
func (r DateRange) EndDate() string { return r.End.Format(dateLayout) }

// Info converts the range for embedding in a dataset.
func (r DateRange) Info() RangeInfo {
	return RangeInfo{Start: r.StartDate(), End: r.EndDate(), Days: r.Days}
}

// ParseDate parses a strict YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	if !isoDate.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// InclusiveDays counts calendar days between a and b, both ends included.
func InclusiveDays(a, b time.Time) int {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return int(d/(24*time.Hour)) + 1
}

// RangeValidator checks a requested range against the configured span.
type RangeValidator struct {
	MaxDays int
}

// Validate parses both dates and enforces start <= end and the maximum span.
func (v RangeValidator) Validate(start, end string) (DateRange, error) {
	s, okStart := ParseDate(start)
	e, okEnd := ParseDate(end)
	if !okStart || !okEnd {
		var invalid []string
		if !okStart {
			invalid = append(invalid, "fecha_ini")
		}
		if !okEnd {
			invalid = append(invalid, "fecha_fin")
		}
		return DateRange{}, apperr.Validation("fecha_ini y fecha_fin son requeridas (YYYY-MM-DD)").
			WithDetails(map[string]any{"fields": invalid})
	}
	if s.After(e) {
		return DateRange{}, apperr.Validation("fecha_ini debe ser <= fecha_fin").
			WithDetails(map[string]any{"fecha_ini": start, "fecha_fin": end})
	}

	days := InclusiveDays(s, e)
	if v.MaxDays > 0 && days > v.MaxDays {
		return DateRange{}, apperr.RangeTooLarge(
			fmt.Sprintf("El rango máximo permitido es de %d días", v.MaxDays)).
			WithDetails(map[string]any{"rangeDays": days, "maxDays": v.MaxDays})
	}
	return DateRange{Start: s, End: e, Days: days}, nil
}

// ResolveGranularity picks the aggregation unit. An explicit day, week or
// month always wins; otherwise ranges over 365 days use month and ranges
// over 90 days use week. Every call site uses this one policy.
func ResolveGranularity(explicit string, rangeDays int) Granularity {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(explicit))); g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return g
	}
	switch {
	case rangeDays > 365:
		return GranularityMonth
	case rangeDays > 90:
		return GranularityWeek
	default:
		return GranularityDay
	}
}
