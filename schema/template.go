package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pthm/hyperbatch/format"
)

// Template renders a string (an href or a title) from an Env.
type Template interface {
	Render(env Env) (string, error)
	Deps() Deps
}

type litTemplate string

// Lit is a constant template.
func Lit(s string) Template { return litTemplate(s) }

func (t litTemplate) Render(Env) (string, error) { return string(t), nil }
func (t litTemplate) Deps() Deps { return Deps{} }

type attrTemplate string

// Attr renders a single entity attribute. Unset attributes render as "".
func Attr(name string) Template { return attrTemplate(name) }

func (t attrTemplate) Render(env Env) (string, error) {
	v, err := env.attr(string(t))
	if err != nil {
		return "", err
	}
	return formatValue(v), nil
}

func (t attrTemplate) Deps() Deps { return Deps{Attributes: []string{string(t)}} }

type joinTemplate []Template

// Join concatenates templates in order.
func Join(parts ...Template) Template { return joinTemplate(parts) }

func (t joinTemplate) Render(env Env) (string, error) {
	var sb strings.Builder
	for _, p := range t {
		s, err := p.Render(env)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func (t joinTemplate) Deps() Deps {
	var d Deps
	for _, p := range t {
		d = d.merge(p.Deps())
	}
	return d
}

type sprintfTemplate struct {
	format string
	attrs  []string
}

// Sprintf substitutes the named attributes positionally into format.
// The number of verbs in format must equal len(attrs); Build rejects
// mismatches.
//
//	schema.Sprintf("Add child of %s", "subject")
func Sprintf(format string, attrs ...string) Template {
	return sprintfTemplate{format: format, attrs: attrs}
}

func (t sprintfTemplate) Render(env Env) (string, error) {
	args := make([]any, len(t.attrs))
	for i, name := range t.attrs {
		v, err := env.attr(name)
		if err != nil {
			return "", err
		}
		args[i] = formatValue(v)
	}
	return fmt.Sprintf(t.format, args...), nil
}

func (t sprintfTemplate) Deps() Deps { return Deps{Attributes: t.attrs} }

func (t sprintfTemplate) check() error {
	if n := countVerbs(t.format); n != len(t.attrs) {
		return fmt.Errorf("template %q expects %d substitutions, got %d", t.format, n, len(t.attrs))
	}
	return nil
}

type viewerIDTemplate struct{}

// ViewerID renders the ID of the viewer. Templates using it are viewer
// dependent.
func ViewerID() Template { return viewerIDTemplate{} }

func (viewerIDTemplate) Render(env Env) (string, error) {
	return strconv.FormatInt(env.ViewerID, 10), nil
}

func (viewerIDTemplate) Deps() Deps { return Deps{Viewer: true} }

type ifTemplate struct {
	cond      Condition
	then, els Template
}

// If renders then when cond holds and els otherwise. A nil els renders "".
func If(cond Condition, then, els Template) Template {
	if els == nil {
		els = Lit("")
	}
	return ifTemplate{cond: cond, then: then, els: els}
}

func (t ifTemplate) Render(env Env) (string, error) {
	ok, err := t.cond.Eval(env)
	if err != nil {
		return "", err
	}
	if ok {
		return t.then.Render(env)
	}
	return t.els.Render(env)
}

func (t ifTemplate) Deps() Deps { return t.cond.Deps().merge(t.then.Deps(), t.els.Deps()) }

// countVerbs counts formatting verbs, ignoring %% escapes.
func countVerbs(format string) int {
	n := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			i++
			continue
		}
		n++
	}
	return n
}

// formatValue renders an attribute value for inclusion in a string.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return format.DateTime(x)
	case *time.Time:
		if x == nil {
			return ""
		}
		return format.DateTime(*x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
