// Package format renders and parses the date, datetime and duration
// representations used in documents.
//
// Durations follow ISO 8601 with minute granularity: 2.5 hours renders as
// "PT2H30M" and zero renders as "PT0S". Dates are calendar dates
// ("2006-01-02") and datetimes are RFC 3339 in UTC.
package format

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/sosodev/duration"
)

// DateLayout is the calendar date layout used in documents.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate is returned when a date string is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("hyperbatch/format: invalid date")

	// ErrInvalidDuration is returned when a string is not an ISO 8601 duration.
	ErrInvalidDuration = errors.New("hyperbatch/format: invalid duration")
)

// Date renders the calendar date of t.
func Date(t time.Time) string {
	return t.Format(DateLayout)
}

// DateTime renders t as RFC 3339 in UTC.
func DateTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// maxMinutes bounds rendered durations to what fits a time.Duration.
const maxMinutes = math.MaxInt64 / int64(time.Minute)

// DurationFromHours renders hours as an ISO 8601 duration rounded to the
// nearest minute. Negative values keep their sign on every component.
// Non-finite or out-of-range hours return ErrInvalidDuration.
func DurationFromHours(hours float64) (string, error) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || math.Abs(hours*60) > float64(maxMinutes) {
		return "", fmt.Errorf("%w: %v hours", ErrInvalidDuration, hours)
	}
	minutes := int64(math.Round(hours * 60))
	if minutes == 0 {
		return "PT0S", nil
	}
	d := duration.Duration{
		Hours:   float64(minutes / 60),
		Minutes: float64(minutes % 60),
	}
	return d.String(), nil
}

// HoursFromDuration parses an ISO 8601 duration of the form PnDTnHnMnS into
// hours. Years, months and weeks are rejected because they have no fixed
// length in hours. Components may be fractional, with either decimal sign.
func HoursFromDuration(s string) (float64, error) {
	if !wellFormed(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	d, err := duration.Parse(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, s, err)
	}
	if d.Years != 0 || d.Months != 0 || d.Weeks != 0 {
		return 0, fmt.Errorf("%w: %q has no fixed length", ErrInvalidDuration, s)
	}
	hours := d.Days*24 + d.Hours + d.Minutes/60 + d.Seconds/3600
	if d.Negative {
		hours = -hours
	}
	return hours, nil
}

// wellFormed rejects shapes the duration parser tolerates: an empty body, a
// trailing "T" or number, and repeated designators.
func wellFormed(s string) bool {
	rest, ok := strings.CutPrefix(strings.TrimPrefix(s, "-"), "P")
	if !ok || rest == "" || strings.HasSuffix(rest, "T") {
		return false
	}
	if last := rest[len(rest)-1]; last < 'A' || last > 'Z' {
		return false
	}
	datePart, timePart, _ := strings.Cut(rest, "T")
	for _, part := range []string{datePart, timePart} {
		for _, r := range part {
			if unicode.IsLetter(r) && strings.Count(part, string(r)) > 1 {
				return false
			}
		}
	}
	return true
}
