package workpackage

import (
	"errors"
	"fmt"
	"time"

	"github.com/pthm/hyperbatch"
	"github.com/pthm/hyperbatch/format"
)

// ErrInvalidField is returned when a writable field has the wrong type or
// does not parse. The property name is part of the message.
var ErrInvalidField = errors.New("workpackage: invalid field")

// Fields is a decoded JSON request body, as produced by json.Unmarshal into
// map[string]any.
type Fields map[string]any

// ApplyDates writes the date fields of a request body into e.
//
// For milestones the single "date" field sets both StartDate and DueDate to
// the same value, and a null date clears both. Without a "date" key both are
// left untouched. Other types read "startDate" and "dueDate" independently.
// Either every present field is applied or, on error, none is.
func ApplyDates(e *hyperbatch.Entity, fields Fields) error {
	if e.Milestone {
		raw, ok := fields["date"]
		if !ok {
			return nil
		}
		d, err := parseDate("date", raw)
		if err != nil {
			return err
		}
		e.StartDate, e.DueDate = d, cloneTime(d)
		return nil
	}

	start, hasStart := fields["startDate"]
	due, hasDue := fields["dueDate"]
	var s, d *time.Time
	var err error
	if hasStart {
		if s, err = parseDate("startDate", start); err != nil {
			return err
		}
	}
	if hasDue {
		if d, err = parseDate("dueDate", due); err != nil {
			return err
		}
	}
	if hasStart {
		e.StartDate = s
	}
	if hasDue {
		e.DueDate = d
	}
	return nil
}

// ApplyEstimates writes "estimatedTime" and "derivedEstimatedTime" into e.
// Values are ISO 8601 durations or null. "spentTime" is read-only and
// ignored.
func ApplyEstimates(e *hyperbatch.Entity, fields Fields) error {
	est, hasEst := fields["estimatedTime"]
	derived, hasDerived := fields["derivedEstimatedTime"]
	var a, b *float64
	var err error
	if hasEst {
		if a, err = parseHours("estimatedTime", est); err != nil {
			return err
		}
	}
	if hasDerived {
		if b, err = parseHours("derivedEstimatedTime", derived); err != nil {
			return err
		}
	}
	if hasEst {
		e.EstimatedHours = a
	}
	if hasDerived {
		e.DerivedEstimatedHours = b
	}
	return nil
}

func parseDate(name string, raw any) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		t, err := format.ParseDate(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidField, name, err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want string", ErrInvalidField, name, raw)
	}
}

func parseHours(name string, raw any) (*float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		h, err := format.HoursFromDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidField, name, err)
		}
		return &h, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want string", ErrInvalidField, name, raw)
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
