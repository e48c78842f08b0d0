package schema

import (
	"fmt"
	"slices"
)

// EntityView exposes the named attributes of an entity being rendered.
// Attr returns ok=false for names the view does not know about; a known
// attribute that is unset returns (nil, true).
type EntityView interface {
	Attr(name string) (any, bool)
}

// Settings is a snapshot of global toggles taken once per batch.
type Settings map[string]string

// Role is the slice of viewer identity the registry cares about.
type Role struct {
	Admin bool
}

// Env is everything a template, condition or value may read.
type Env struct {
	View     EntityView
	Settings Settings
	// Watching reports whether the viewer watches the entity and ViewerID
	// identifies the viewer. Only uncacheable descriptors may read either.
	Watching bool
	ViewerID int64
}

// attr reads a named attribute, failing on names the view does not know.
func (e Env) attr(name string) (any, error) {
	if e.View == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	v, ok := e.View.Attr(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	return v, nil
}

// Deps lists what an expression reads.
type Deps struct {
	Attributes []string
	Settings   []string
	Viewer     bool
}

func (d Deps) merge(others ...Deps) Deps {
	out := Deps{
		Attributes: slices.Clone(d.Attributes),
		Settings:   slices.Clone(d.Settings),
		Viewer:     d.Viewer,
	}
	for _, o := range others {
		out.Attributes = append(out.Attributes, o.Attributes...)
		out.Settings = append(out.Settings, o.Settings...)
		out.Viewer = out.Viewer || o.Viewer
	}
	return out
}
