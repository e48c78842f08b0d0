package hyperbatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm/hyperbatch/schema"
)

// Projector renders batches of entities into documents according to a
// registry. It holds no per-call state and is safe for concurrent use.
type Projector struct {
	registry *schema.Registry
	stores   Stores
	agg      *Aggregator
	opts     options
}

// NewProjector returns a projector for the documents described by reg.
func NewProjector(reg *schema.Registry, stores Stores, opts ...Option) *Projector {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Projector{
		registry: reg,
		stores:   stores,
		agg: &Aggregator{
			graph:          stores.Graph,
			visibility:     stores.Visibility,
			viewPermission: reg.ViewPermission(),
			opts:           o,
		},
		opts: o,
	}
}

// Registry returns the registry the projector renders with.
func (p *Projector) Registry() *schema.Registry {
	return p.registry
}

// Aggregator returns the hierarchy aggregator sharing the projector's stores.
func (p *Projector) Aggregator() *Aggregator {
	return p.agg
}

// batch is everything one Project call fetched up front.
type batch struct {
	viewer      Viewer
	role        schema.Role
	permissions []string
	sets        map[string]ContainerSet
	entities    map[ID]*Entity
	up, down    []Edge
	watching    map[ID]bool
	actions     map[string]map[ID][]Action
}

func (b *batch) granted(permission string, container ID) bool {
	set, ok := b.sets[permission]
	return ok && set.Contains(container)
}

// Project renders one document per distinct ID for viewer. The result holds
// every requested ID; missing and invisible entities map to an empty
// document. A store failure fails the whole batch and no documents are
// returned. A guard or value that fails to evaluate only omits its key.
func (p *Projector) Project(ctx context.Context, ids []ID, viewer Viewer) (docs map[ID]*Document, err error) {
	start := time.Now()
	ids = uniqueIDs(ids)
	defer func() { p.opts.metrics.recordBatch(len(ids), time.Since(start), err) }()

	if len(ids) == 0 {
		return map[ID]*Document{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := p.fetch(ctx, ids, viewer)
	if err != nil {
		return nil, err
	}

	visible := AllContainers()
	if vp := p.registry.ViewPermission(); vp != "" {
		visible = b.sets[vp]
	}
	hier := p.agg.build(ids, b.up, b.down, visible)

	type miss struct {
		entity *Entity
		key    Key
	}
	docs = make(map[ID]*Document, len(ids))
	var rendered []*Entity
	var misses []miss

	for _, id := range ids {
		e, ok := b.entities[id]
		if !ok || !visible.Contains(e.ContainerID) {
			docs[id] = NewDocument()
			continue
		}
		rendered = append(rendered, e)

		var key Key
		if p.opts.cache != nil {
			key = p.cacheKey(e, b)
			if cached, ok := p.opts.cache.Get(key); ok {
				p.opts.metrics.recordCache(true)
				docs[id] = cached.Clone()
				continue
			}
			p.opts.metrics.recordCache(false)
		}
		misses = append(misses, miss{entity: e, key: key})
	}

	if len(misses) > 0 {
		missed := make([]*Entity, len(misses))
		for i, m := range misses {
			missed[i] = m.entity
		}
		targets, err := p.resolveTargets(ctx, missed)
		if err != nil {
			return nil, err
		}
		for _, m := range misses {
			doc := p.renderCacheable(m.entity, b, targets)
			if p.opts.cache != nil {
				p.opts.cache.Set(m.key, doc.Clone())
			}
			docs[m.entity.ID] = doc
		}
	}

	for _, e := range rendered {
		p.mergeUncacheable(docs[e.ID], e, b, hier)
	}
	return docs, nil
}

// fetch runs every bulk query of the batch: one visibility query per
// distinct permission, the entity fetch, both edge fetches, the watcher
// lookup and one query per action list. The first failure cancels the rest.
func (p *Projector) fetch(ctx context.Context, ids []ID, viewer Viewer) (*batch, error) {
	role := viewer.Role()
	b := &batch{
		viewer:      viewer,
		role:        role,
		permissions: p.registry.Permissions(role),
		watching:    map[ID]bool{},
		actions:     map[string]map[ID][]Action{},
	}
	b.sets = make(map[string]ContainerSet, len(b.permissions))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.concurrency)

	for _, perm := range b.permissions {
		g.Go(func() error {
			set, err := p.stores.Visibility.AllowedContainers(gctx, viewer, perm)
			if err != nil {
				return fmt.Errorf("visibility %s: %w", perm, err)
			}
			mu.Lock()
			b.sets[perm] = set
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		rows, err := p.stores.Entities.BulkFetch(gctx, ids)
		if err != nil {
			return fmt.Errorf("entities: %w", err)
		}
		b.entities = make(map[ID]*Entity, len(rows))
		for i := range rows {
			b.entities[rows[i].ID] = &rows[i]
		}
		return nil
	})

	g.Go(func() error {
		edges, err := p.stores.Graph.BulkEdges(gctx, ids, EdgeQuery{Direction: Up})
		if err != nil {
			return fmt.Errorf("ancestors: %w", err)
		}
		b.up = edges
		return nil
	})

	g.Go(func() error {
		edges, err := p.stores.Graph.BulkEdges(gctx, ids, EdgeQuery{Direction: Down, MaxDistance: 1})
		if err != nil {
			return fmt.Errorf("children: %w", err)
		}
		b.down = edges
		return nil
	})

	if p.stores.Watchers != nil {
		g.Go(func() error {
			w, err := p.stores.Watchers.Watching(gctx, viewer, ids)
			if err != nil {
				return fmt.Errorf("watchers: %w", err)
			}
			b.watching = w
			return nil
		})
	}

	if p.stores.Actions != nil {
		for _, l := range p.registry.ActionLists() {
			g.Go(func() error {
				actions, err := p.stores.Actions.Actions(gctx, l.Name, viewer, ids)
				if err != nil {
					return fmt.Errorf("actions %s: %w", l.Name, err)
				}
				mu.Lock()
				b.actions[l.Name] = actions
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

// resolveTargets resolves association targets of every entity that missed
// the cache with one query per join target.
func (p *Projector) resolveTargets(ctx context.Context, entities []*Entity) (map[string]map[ID]Target, error) {
	wanted := map[string][]ID{}
	seen := map[string]map[ID]struct{}{}
	for _, a := range p.registry.Associations() {
		if seen[a.JoinTarget] == nil {
			seen[a.JoinTarget] = map[ID]struct{}{}
		}
		for _, e := range entities {
			id, ok := foreignKey(e, a.ForeignKey)
			if !ok {
				continue
			}
			if _, dup := seen[a.JoinTarget][id]; dup {
				continue
			}
			seen[a.JoinTarget][id] = struct{}{}
			wanted[a.JoinTarget] = append(wanted[a.JoinTarget], id)
		}
	}

	out := make(map[string]map[ID]Target, len(wanted))
	if len(wanted) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.concurrency)
	for target, ids := range wanted {
		g.Go(func() error {
			resolved, err := p.stores.Associations.ResolveTargets(gctx, target, ids)
			if err != nil {
				return fmt.Errorf("associations %s: %w", target, err)
			}
			mu.Lock()
			out[target] = resolved
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Projector) cacheKey(e *Entity, b *batch) Key {
	granted := make([]string, 0, len(b.permissions))
	for _, perm := range b.permissions {
		if b.granted(perm, e.ContainerID) {
			granted = append(granted, perm)
		}
	}
	return CacheKey(e, KeyContext{
		Kind:           p.registry.Kind(),
		Locale:         b.viewer.Locale,
		Granted:        granted,
		Admin:          b.viewer.Admin,
		AdminSensitive: p.registry.HasAdminOnly(),
		Settings:       p.opts.settings,
		SettingNames:   p.registry.CacheSettings(),
	})
}

func (p *Projector) env(e *Entity, b *batch) schema.Env {
	return schema.Env{
		View:     e,
		Settings: p.opts.settings,
		Watching: b.watching[e.ID],
		ViewerID: int64(b.viewer.ID),
	}
}

// renderCacheable renders everything that may be shared between viewers
// with the same grants. Uncacheable descriptors and hierarchy links get
// placeholder slots so the merged document keeps declaration order.
func (p *Projector) renderCacheable(e *Entity, b *batch, targets map[string]map[ID]Target) *Document {
	env := p.env(e, b)
	doc := NewDocument()
	doc.Set("_type", p.registry.Kind())

	for _, prop := range p.registry.Properties() {
		if prop.Uncacheable {
			doc.Set(prop.Name, nil)
			continue
		}
		if v, ok := p.property(prop, e, env, b); ok {
			doc.Set(prop.Name, v)
		}
	}

	links := doc.Links()
	for _, l := range p.registry.ActionLinks(b.role) {
		if l.Uncacheable {
			links.Set(l.Name, nil)
			continue
		}
		if link, ok := p.actionLink(l, e, env, b); ok {
			links.Set(l.Name, link)
		}
	}
	for _, a := range p.registry.Associations() {
		if ref, ok := p.association(a, e, env, targets); ok {
			links.Set(a.Key, ref)
		}
	}
	for _, l := range p.registry.ActionLists() {
		links.Set(l.Name, nil)
	}
	for _, k := range []string{"ancestors", "children", "parent"} {
		links.Set(k, nil)
	}
	return doc
}

// mergeUncacheable fills the viewer-specific slots of a document and strips
// null link entries.
func (p *Projector) mergeUncacheable(doc *Document, e *Entity, b *batch, hier Hierarchy) {
	env := p.env(e, b)

	for _, prop := range p.registry.Properties() {
		if !prop.Uncacheable {
			continue
		}
		if v, ok := p.property(prop, e, env, b); ok {
			doc.Set(prop.Name, v)
		} else {
			doc.Delete(prop.Name)
		}
	}

	links := doc.Links()
	for _, l := range p.registry.ActionLinks(b.role) {
		if !l.Uncacheable {
			continue
		}
		if link, ok := p.actionLink(l, e, env, b); ok {
			links.Set(l.Name, link)
		} else {
			links.Delete(l.Name)
		}
	}

	if p.stores.Actions != nil {
		for _, l := range p.registry.ActionLists() {
			links.Set(l.Name, p.actionList(l, e, b))
		}
	}

	links.Set("ancestors", hier.Ancestors[e.ID])
	links.Set("children", hier.Children[e.ID])
	links.Set("parent", refOf(hier.Parent[e.ID]))
	links.stripNulls()
}

// actionList renders the actions of l available on e. It is empty, not
// absent, when the viewer lacks l's permission.
func (p *Projector) actionList(l schema.ActionList, e *Entity, b *batch) []Ref {
	refs := []Ref{}
	if l.Permission != "" && !b.granted(l.Permission, e.ContainerID) {
		return refs
	}
	for _, a := range b.actions[l.Name][e.ID] {
		refs = append(refs, Ref{
			Href:  p.opts.apiBase + "/" + a.Path + "/" + a.ID.String(),
			Title: a.Name,
		})
	}
	return refs
}

func (p *Projector) property(prop schema.Property, e *Entity, env schema.Env, b *batch) (any, bool) {
	if prop.Permission != "" && !b.granted(prop.Permission, e.ContainerID) {
		return nil, false
	}
	if !p.guard(prop.Guard, "property "+prop.Name, e, env) {
		return nil, false
	}
	v, err := prop.Value.Eval(env)
	if err != nil {
		p.evalFailed("property "+prop.Name, e, err)
		return nil, false
	}
	return v, true
}

func (p *Projector) actionLink(l schema.ActionLink, e *Entity, env schema.Env, b *batch) (Link, bool) {
	name := "link " + l.Name
	if l.Permission != "" && !b.granted(l.Permission, e.ContainerID) {
		return Link{}, false
	}
	if !p.guard(l.Guard, name, e, env) {
		return Link{}, false
	}

	href, err := l.Href.Render(env)
	if err != nil {
		p.evalFailed(name, e, err)
		return Link{}, false
	}
	link := Link{
		Href:      href,
		Method:    l.Method,
		Type:      l.MediaType,
		Templated: l.Templated,
	}
	if l.Title != nil {
		if link.Title, err = l.Title.Render(env); err != nil {
			p.evalFailed(name, e, err)
			return Link{}, false
		}
	}
	if len(l.Payload) > 0 {
		link.Payload = NewDocument()
		for _, f := range l.Payload {
			v, err := f.Value.Eval(env)
			if err != nil {
				p.evalFailed(name, e, err)
				return Link{}, false
			}
			link.Payload.Set(f.Name, v)
		}
	}
	return link, true
}

func (p *Projector) association(a schema.Association, e *Entity, env schema.Env, targets map[string]map[ID]Target) (NullableRef, bool) {
	name := "association " + a.Name
	if !p.guard(a.Guard, name, e, env) {
		return NullableRef{}, false
	}

	id, ok := foreignKey(e, a.ForeignKey)
	if !ok {
		return NullableRef{}, true
	}
	target, found := targets[a.JoinTarget][id]

	var href string
	switch {
	case a.Href != nil:
		var err error
		if href, err = a.Href.Render(env); err != nil {
			p.evalFailed(name, e, err)
			return NullableRef{}, false
		}
	case found:
		href = p.opts.apiBase + "/" + target.Path + "/" + target.ID.String()
	default:
		return NullableRef{}, true
	}

	ref := NullableRef{Href: &href}
	if !found {
		return ref, true
	}
	title := target.Name
	if a.Title != nil {
		var err error
		if title, err = a.Title.Render(schema.Env{View: target, Settings: env.Settings}); err != nil {
			p.evalFailed(name, e, err)
			return NullableRef{}, false
		}
	}
	ref.Title = &title
	return ref, true
}

// guard evaluates an optional condition. Evaluation errors are logged and
// treated as false.
func (p *Projector) guard(c schema.Condition, descriptor string, e *Entity, env schema.Env) bool {
	if c == nil {
		return true
	}
	ok, err := c.Eval(env)
	if err != nil {
		p.evalFailed(descriptor, e, err)
		return false
	}
	return ok
}

func (p *Projector) evalFailed(descriptor string, e *Entity, err error) {
	p.opts.logger.Warn("descriptor failed to evaluate, omitting",
		"descriptor", descriptor, "id", e.ID, "err", err)
	p.opts.metrics.recordGuardFailure(descriptor)
}

// foreignKey reads an optional ID attribute.
func foreignKey(e *Entity, attr string) (ID, bool) {
	v, ok := e.Attr(attr)
	if !ok {
		return 0, false
	}
	id, ok := v.(ID)
	return id, ok && id != 0
}
