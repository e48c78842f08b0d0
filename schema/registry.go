package schema

import (
	"errors"
	"fmt"
	"slices"
)

// reservedLinks are filled by the hierarchy aggregator and cannot be declared.
var reservedLinks = []string{"ancestors", "children", "parent"}

// Builder collects declarations for one document kind. It is not safe for
// concurrent use; the Registry it builds is.
type Builder struct {
	kind           string
	catalog        map[string]struct{}
	viewPermission string
	implicit       []string

	properties   []Property
	links        []ActionLink
	associations []Association
	lists        []ActionList
	errs         []error
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithViewPermission names the permission that makes an entity, its
// ancestors and its children visible. It is always part of Permissions.
func WithViewPermission(permission string) BuilderOption {
	return func(b *Builder) { b.viewPermission = permission }
}

// WithImplicitPermissions adds permissions that are always resolved, even
// when no descriptor names them.
func WithImplicitPermissions(permissions ...string) BuilderOption {
	return func(b *Builder) { b.implicit = append(b.implicit, permissions...) }
}

// NewBuilder starts a registry for kind. catalog lists every attribute the
// kind's entity view exposes.
func NewBuilder(kind string, catalog []string, opts ...BuilderOption) *Builder {
	b := &Builder{
		kind:    kind,
		catalog: make(map[string]struct{}, len(catalog)),
	}
	for _, a := range catalog {
		b.catalog[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DeclareProperty registers a property. Properties render in declaration order.
func (b *Builder) DeclareProperty(name string, v Value, opts ...PropertyOption) *Builder {
	p := Property{Name: name, Value: v}
	for _, opt := range opts {
		opt(&p)
	}
	b.properties = append(b.properties, p)
	return b
}

// DeclareActionLink registers an action link. Links render in declaration order.
func (b *Builder) DeclareActionLink(name string, href Template, opts ...LinkOption) *Builder {
	l := ActionLink{Name: name, Href: href}
	for _, opt := range opts {
		opt(&l)
	}
	b.links = append(b.links, l)
	return b
}

// DeclareAssociationLink registers a link to the entity referenced by
// name+"_id" (or WithForeignKey) resolved through joinTarget.
func (b *Builder) DeclareAssociationLink(name, joinTarget string, opts ...AssociationOption) *Builder {
	a := Association{Name: name, JoinTarget: joinTarget}
	for _, opt := range opts {
		opt(&a)
	}
	if a.Key == "" {
		a.Key = name
	}
	if a.ForeignKey == "" {
		a.ForeignKey = name + "_id"
	}
	b.associations = append(b.associations, a)
	return b
}

// DeclareActionList registers a link holding the workflow actions available
// on the entity, such as custom actions. Lists are resolved per viewer and
// never cached. Viewers lacking permission on the entity's container get an
// empty list.
func (b *Builder) DeclareActionList(name, permission string) *Builder {
	b.lists = append(b.lists, ActionList{Name: name, Permission: permission})
	return b
}

// Build validates all declarations and returns the immutable registry.
// Every problem found is reported, joined, under ErrInvalidRegistry.
func (b *Builder) Build() (*Registry, error) {
	b.errs = nil
	b.validate()
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRegistry, b.kind, errors.Join(b.errs...))
	}

	return &Registry{
		kind:           b.kind,
		viewPermission: b.viewPermission,
		implicit:       slices.Clone(b.implicit),
		properties:     slices.Clone(b.properties),
		links:          slices.Clone(b.links),
		associations:   slices.Clone(b.associations),
		lists:          slices.Clone(b.lists),
	}, nil
}

func (b *Builder) validate() {
	if b.kind == "" {
		b.errorf("document kind is empty")
	}

	props := map[string]bool{}
	for _, p := range b.properties {
		where := "property " + p.Name
		if p.Name == "" || p.Name == "_links" {
			b.errorf("%s: invalid name", where)
		}
		if props[p.Name] {
			b.errorf("%s: declared twice", where)
		}
		props[p.Name] = true
		if p.Value == nil {
			b.errorf("%s: no value", where)
			continue
		}
		b.checkDeps(where, p.Value.Deps(), p.Uncacheable)
		if p.Guard != nil {
			b.checkDeps(where, p.Guard.Deps(), p.Uncacheable)
		}
	}

	links := map[string]bool{}
	claim := func(where, name string) {
		if name == "" || slices.Contains(reservedLinks, name) {
			b.errorf("%s: name %q is reserved", where, name)
		}
		if links[name] {
			b.errorf("%s: declared twice", where)
		}
		links[name] = true
	}

	for _, l := range b.links {
		where := "link " + l.Name
		claim(where, l.Name)
		if l.Href == nil {
			b.errorf("%s: no href", where)
		} else {
			b.checkTemplate(where, l.Href, l.Uncacheable)
		}
		if l.Title != nil {
			b.checkTemplate(where, l.Title, l.Uncacheable)
		}
		if l.Guard != nil {
			b.checkDeps(where, l.Guard.Deps(), l.Uncacheable)
		}
		for _, f := range l.Payload {
			if f.Value == nil {
				b.errorf("%s: payload field %s has no value", where, f.Name)
				continue
			}
			b.checkDeps(where, f.Value.Deps(), l.Uncacheable)
		}
	}

	for _, a := range b.associations {
		where := "association " + a.Name
		claim(where, a.Key)
		if a.JoinTarget == "" {
			b.errorf("%s: no join target", where)
		}
		b.checkDeps(where, Deps{Attributes: []string{a.ForeignKey}}, false)
		if a.Href != nil {
			b.checkTemplate(where, a.Href, false)
		}
		if a.Guard != nil {
			b.checkDeps(where, a.Guard.Deps(), false)
		}
		if a.Title != nil {
			b.checkTargetTitle(where, a.Title)
		}
	}

	for _, l := range b.lists {
		claim("action list "+l.Name, l.Name)
	}
}

func (b *Builder) checkTemplate(where string, t Template, uncacheable bool) {
	b.checkVerbs(where, t)
	b.checkDeps(where, t.Deps(), uncacheable)
}

func (b *Builder) checkTargetTitle(where string, t Template) {
	b.checkVerbs(where, t)
	d := t.Deps()
	for _, a := range d.Attributes {
		if !slices.Contains(TargetAttributes, a) {
			b.errorf("%s: title reads unknown target attribute %q", where, a)
		}
	}
	if d.Viewer {
		b.errorf("%s: title depends on the viewer", where)
	}
}

// checkVerbs walks a template tree and validates every Sprintf node.
func (b *Builder) checkVerbs(where string, t Template) {
	switch tt := t.(type) {
	case sprintfTemplate:
		if err := tt.check(); err != nil {
			b.errorf("%s: %v", where, err)
		}
	case joinTemplate:
		for _, p := range tt {
			b.checkVerbs(where, p)
		}
	case ifTemplate:
		b.checkVerbs(where, tt.then)
		b.checkVerbs(where, tt.els)
	}
}

func (b *Builder) checkDeps(where string, d Deps, uncacheable bool) {
	for _, a := range d.Attributes {
		if _, ok := b.catalog[a]; !ok {
			b.errorf("%s: unknown attribute %q", where, a)
		}
	}
	if d.Viewer && !uncacheable {
		b.errorf("%s: depends on the viewer but is cacheable", where)
	}
}

func (b *Builder) errorf(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}

// Registry is the validated, immutable rendering schema of one document kind.
// It is safe for concurrent use.
type Registry struct {
	kind           string
	viewPermission string
	implicit       []string
	properties     []Property
	links          []ActionLink
	associations   []Association
	lists          []ActionList
}

// Kind returns the document kind, e.g. "WorkPackage".
func (r *Registry) Kind() string { return r.kind }

// ViewPermission returns the permission gating visibility.
func (r *Registry) ViewPermission() string { return r.viewPermission }

// Properties returns the properties in declaration order.
func (r *Registry) Properties() []Property { return slices.Clone(r.properties) }

// Associations returns the associations in declaration order.
func (r *Registry) Associations() []Association { return slices.Clone(r.associations) }

// ActionLists returns the action lists in declaration order.
func (r *Registry) ActionLists() []ActionList { return slices.Clone(r.lists) }

// ActionLinks returns the action links visible to role, in declaration order.
func (r *Registry) ActionLinks(role Role) []ActionLink {
	out := make([]ActionLink, 0, len(r.links))
	for _, l := range r.links {
		if l.AdminOnly && !role.Admin {
			continue
		}
		out = append(out, l)
	}
	return out
}

// HasAdminOnly reports whether any link is restricted to admins, which makes
// the admin flag part of the cache key.
func (r *Registry) HasAdminOnly() bool {
	return slices.ContainsFunc(r.links, func(l ActionLink) bool { return l.AdminOnly })
}

// Permissions returns the sorted, deduplicated permissions needed to render
// a document for role: link and property permissions plus the view
// permission and any implicit ones.
func (r *Registry) Permissions(role Role) []string {
	var perms []string
	if r.viewPermission != "" {
		perms = append(perms, r.viewPermission)
	}
	perms = append(perms, r.implicit...)
	for _, p := range r.properties {
		if p.Permission != "" {
			perms = append(perms, p.Permission)
		}
	}
	for _, l := range r.ActionLinks(role) {
		if l.Permission != "" {
			perms = append(perms, l.Permission)
		}
	}
	for _, l := range r.lists {
		if l.Permission != "" {
			perms = append(perms, l.Permission)
		}
	}
	return sortedUnique(perms)
}

// CacheSettings returns the sorted global settings read by cacheable
// descriptors. Their values must be part of every cache key.
func (r *Registry) CacheSettings() []string {
	var settings []string
	add := func(d Deps) { settings = append(settings, d.Settings...) }

	for _, p := range r.properties {
		if p.Uncacheable {
			continue
		}
		add(p.Value.Deps())
		if p.Guard != nil {
			add(p.Guard.Deps())
		}
	}
	for _, l := range r.links {
		if l.Uncacheable {
			continue
		}
		add(l.Href.Deps())
		if l.Title != nil {
			add(l.Title.Deps())
		}
		if l.Guard != nil {
			add(l.Guard.Deps())
		}
		for _, f := range l.Payload {
			add(f.Value.Deps())
		}
	}
	for _, a := range r.associations {
		if a.Href != nil {
			add(a.Href.Deps())
		}
		if a.Title != nil {
			add(a.Title.Deps())
		}
		if a.Guard != nil {
			add(a.Guard.Deps())
		}
	}
	return sortedUnique(settings)
}

// JoinTargets returns the distinct association join targets, sorted.
func (r *Registry) JoinTargets() []string {
	targets := make([]string, 0, len(r.associations))
	for _, a := range r.associations {
		targets = append(targets, a.JoinTarget)
	}
	return sortedUnique(targets)
}

func sortedUnique(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
