package schema

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pthm/hyperbatch/format"
)

// Value computes a property body from an Env. A nil result renders as JSON null.
type Value interface {
	Eval(env Env) (any, error)
	Deps() Deps
}

type columnValue string

// Column renders an attribute as-is.
func Column(attr string) Value { return columnValue(attr) }

func (v columnValue) Eval(env Env) (any, error) { return env.attr(string(v)) }
func (v columnValue) Deps() Deps { return Deps{Attributes: []string{string(v)}} }

type intValue string

// Int renders a numeric attribute as an integer; unset renders as 0.
func Int(attr string) Value { return intValue(attr) }

func (v intValue) Eval(env Env) (any, error) {
	raw, err := env.attr(string(v))
	if err != nil {
		return nil, err
	}
	switch n := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case fmt.Stringer:
		return strconv.Atoi(n.String())
	default:
		return nil, fmt.Errorf("%w: %s is %T, want integer", ErrAttributeType, string(v), raw)
	}
}

func (v intValue) Deps() Deps { return Deps{Attributes: []string{string(v)}} }

type constValue struct{ v any }

// Const renders a fixed value.
func Const(v any) Value { return constValue{v: v} }

func (c constValue) Eval(Env) (any, error) { return c.v, nil }
func (c constValue) Deps() Deps { return Deps{} }

type dateValue struct {
	attr     string
	withTime bool
}

// Date renders a date attribute as YYYY-MM-DD, or null when unset.
func Date(attr string) Value { return dateValue{attr: attr} }

// DateTime renders a timestamp attribute as RFC 3339 UTC, or null when unset.
func DateTime(attr string) Value { return dateValue{attr: attr, withTime: true} }

func (v dateValue) Eval(env Env) (any, error) {
	raw, err := env.attr(v.attr)
	if err != nil {
		return nil, err
	}
	t, ok, err := asTime(v.attr, raw)
	if err != nil || !ok {
		return nil, err
	}
	if v.withTime {
		return format.DateTime(t), nil
	}
	return format.Date(t), nil
}

func (v dateValue) Deps() Deps { return Deps{Attributes: []string{v.attr}} }

type durationValue struct {
	attr     string
	allowNil bool
}

// Duration renders an hours attribute as an ISO 8601 duration. When allowNil
// is false an unset attribute renders as "PT0S" instead of null.
func Duration(attr string, allowNil bool) Value {
	return durationValue{attr: attr, allowNil: allowNil}
}

func (v durationValue) Eval(env Env) (any, error) {
	raw, err := env.attr(v.attr)
	if err != nil {
		return nil, err
	}
	hours, ok, err := asHours(v.attr, raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		if v.allowNil {
			return nil, nil
		}
		hours = 0
	}
	return format.DurationFromHours(hours)
}

func (v durationValue) Deps() Deps { return Deps{Attributes: []string{v.attr}} }

// Formatted is the body of a formattable text property.
type Formatted struct {
	Format string `json:"format"`
	Raw    string `json:"raw"`
}

type formattableValue struct {
	attr   string
	format string
}

// Formattable renders a text attribute as {"format": markup, "raw": text}.
// Unset text renders with an empty raw body.
func Formattable(attr, markup string) Value {
	return formattableValue{attr: attr, format: markup}
}

func (v formattableValue) Eval(env Env) (any, error) {
	raw, err := env.attr(v.attr)
	if err != nil {
		return nil, err
	}
	switch s := raw.(type) {
	case nil:
		return Formatted{Format: v.format}, nil
	case string:
		return Formatted{Format: v.format, Raw: s}, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want string", ErrAttributeType, v.attr, raw)
	}
}

func (v formattableValue) Deps() Deps { return Deps{Attributes: []string{v.attr}} }

type templateValue struct{ t Template }

// Href renders a template as a string value, e.g. inside a link payload.
func Href(t Template) Value { return templateValue{t: t} }

func (v templateValue) Eval(env Env) (any, error) { return v.t.Render(env) }
func (v templateValue) Deps() Deps { return v.t.Deps() }

func asTime(name string, raw any) (time.Time, bool, error) {
	switch t := raw.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return t, true, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, false, nil
		}
		return *t, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("%w: %s is %T, want time", ErrAttributeType, name, raw)
	}
}

func asHours(name string, raw any) (float64, bool, error) {
	switch h := raw.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return h, true, nil
	case *float64:
		if h == nil {
			return 0, false, nil
		}
		return *h, true, nil
	case int:
		return float64(h), true, nil
	case int64:
		return float64(h), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s is %T, want hours", ErrAttributeType, name, raw)
	}
}
