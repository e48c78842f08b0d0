package hyperbatch

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Hierarchy holds the hierarchy links of a batch. Every requested ID has an
// entry in each map: an empty slice, or a nil parent, when there is nothing
// visible to link to.
type Hierarchy struct {
	Ancestors map[ID][]Ref
	Children  map[ID][]Ref
	Parent    map[ID]*Ref
}

// Aggregator computes ancestors, children and parents for a batch with one
// edge query per direction, independent of batch size.
type Aggregator struct {
	graph          RelationGraph
	visibility     Visibility
	viewPermission string
	opts           options
}

// NewAggregator returns an aggregator that filters peers by the containers
// on which the viewer holds viewPermission.
func NewAggregator(graph RelationGraph, visibility Visibility, viewPermission string, opts ...Option) *Aggregator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Aggregator{
		graph:          graph,
		visibility:     visibility,
		viewPermission: viewPermission,
		opts:           o,
	}
}

// AncestorsOf returns, for every ID, its visible ancestors ordered farthest
// first. Ancestors at the same distance are ordered by ascending ID.
func (a *Aggregator) AncestorsOf(ctx context.Context, ids []ID, viewer Viewer) (map[ID][]Ref, error) {
	visible, err := a.visible(ctx, viewer)
	if err != nil {
		return nil, err
	}
	ids = uniqueIDs(ids)
	edges, err := a.graph.BulkEdges(ctx, ids, EdgeQuery{Direction: Up})
	if err != nil {
		return nil, fmt.Errorf("ancestors: %w", err)
	}
	return a.ancestors(ids, edges, visible), nil
}

// ChildrenOf returns, for every ID, its visible direct children in ascending
// ID order.
func (a *Aggregator) ChildrenOf(ctx context.Context, ids []ID, viewer Viewer) (map[ID][]Ref, error) {
	visible, err := a.visible(ctx, viewer)
	if err != nil {
		return nil, err
	}
	ids = uniqueIDs(ids)
	edges, err := a.graph.BulkEdges(ctx, ids, EdgeQuery{Direction: Down, MaxDistance: 1})
	if err != nil {
		return nil, fmt.Errorf("children: %w", err)
	}
	return a.children(ids, edges, visible), nil
}

// ParentOf returns, for every ID, its direct parent or nil when there is none
// or the viewer cannot see it.
func (a *Aggregator) ParentOf(ctx context.Context, ids []ID, viewer Viewer) (map[ID]*Ref, error) {
	visible, err := a.visible(ctx, viewer)
	if err != nil {
		return nil, err
	}
	ids = uniqueIDs(ids)
	edges, err := a.graph.BulkEdges(ctx, ids, EdgeQuery{Direction: Up, MaxDistance: 1})
	if err != nil {
		return nil, fmt.Errorf("parents: %w", err)
	}
	return a.parents(ids, edges, visible), nil
}

// Aggregate computes all three hierarchy views from two edge queries, using
// an already resolved visible container set.
func (a *Aggregator) Aggregate(ctx context.Context, ids []ID, visible ContainerSet) (Hierarchy, error) {
	ids = uniqueIDs(ids)
	var up, down []Edge

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.concurrency)
	g.Go(func() error {
		var err error
		up, err = a.graph.BulkEdges(gctx, ids, EdgeQuery{Direction: Up})
		if err != nil {
			return fmt.Errorf("ancestors: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		down, err = a.graph.BulkEdges(gctx, ids, EdgeQuery{Direction: Down, MaxDistance: 1})
		if err != nil {
			return fmt.Errorf("children: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Hierarchy{}, err
	}
	return a.build(ids, up, down, visible), nil
}

func (a *Aggregator) visible(ctx context.Context, viewer Viewer) (ContainerSet, error) {
	set, err := a.visibility.AllowedContainers(ctx, viewer, a.viewPermission)
	if err != nil {
		return ContainerSet{}, fmt.Errorf("visibility %s: %w", a.viewPermission, err)
	}
	return set, nil
}

// build assembles the hierarchy from unbounded upward edges and direct
// downward edges.
func (a *Aggregator) build(ids []ID, up, down []Edge, visible ContainerSet) Hierarchy {
	return Hierarchy{
		Ancestors: a.ancestors(ids, up, visible),
		Children:  a.children(ids, down, visible),
		Parent:    a.parents(ids, up, visible),
	}
}

func (a *Aggregator) ancestors(ids []ID, edges []Edge, visible ContainerSet) map[ID][]Ref {
	grouped := groupEdges(ids, edges, func(e Edge) ID { return e.To }, 0)
	out := make(map[ID][]Ref, len(ids))
	for _, id := range ids {
		es := grouped[id]
		slices.SortFunc(es, func(x, y Edge) int {
			if c := cmp.Compare(y.Hierarchy, x.Hierarchy); c != 0 {
				return c
			}
			return cmp.Compare(x.Peer.ID, y.Peer.ID)
		})
		out[id] = a.refs(es, visible)
	}
	return out
}

func (a *Aggregator) children(ids []ID, edges []Edge, visible ContainerSet) map[ID][]Ref {
	grouped := groupEdges(ids, edges, func(e Edge) ID { return e.From }, 1)
	out := make(map[ID][]Ref, len(ids))
	for _, id := range ids {
		es := grouped[id]
		slices.SortFunc(es, func(x, y Edge) int { return cmp.Compare(x.Peer.ID, y.Peer.ID) })
		out[id] = a.refs(es, visible)
	}
	return out
}

// parents picks the lowest-ID direct parent when the data holds more than
// one, and logs the anomaly. Visibility is applied after the choice so that
// an invisible parent is never replaced by a visible sibling parent.
func (a *Aggregator) parents(ids []ID, edges []Edge, visible ContainerSet) map[ID]*Ref {
	grouped := groupEdges(ids, edges, func(e Edge) ID { return e.To }, 1)
	out := make(map[ID]*Ref, len(ids))
	for _, id := range ids {
		es := grouped[id]
		out[id] = nil
		if len(es) == 0 {
			continue
		}
		slices.SortFunc(es, func(x, y Edge) int { return cmp.Compare(x.Peer.ID, y.Peer.ID) })
		es = slices.CompactFunc(es, func(x, y Edge) bool { return x.Peer.ID == y.Peer.ID })

		if len(es) > 1 {
			parentIDs := make([]ID, len(es))
			for i, e := range es {
				parentIDs[i] = e.Peer.ID
			}
			a.opts.logger.Warn("entity has more than one direct parent",
				"id", id, "parent_ids", parentIDs, "chosen", es[0].Peer.ID)
			a.opts.metrics.recordHierarchyAnomaly()
		}

		chosen := es[0].Peer
		if !visible.Contains(chosen.ContainerID) {
			continue
		}
		ref := a.ref(chosen)
		out[id] = &ref
	}
	return out
}

// refs converts sorted edges to refs, dropping invisible and repeated peers.
func (a *Aggregator) refs(edges []Edge, visible ContainerSet) []Ref {
	out := make([]Ref, 0, len(edges))
	seen := make(map[ID]struct{}, len(edges))
	for _, e := range edges {
		if _, ok := seen[e.Peer.ID]; ok {
			continue
		}
		seen[e.Peer.ID] = struct{}{}
		if !visible.Contains(e.Peer.ContainerID) {
			continue
		}
		out = append(out, a.ref(e.Peer))
	}
	return out
}

func (a *Aggregator) ref(p Peer) Ref {
	return Ref{Href: a.opts.entityHref(p.ID), Title: p.Subject}
}

// groupEdges keeps pure hierarchy edges belonging to a requested ID, keyed by
// owner. A distance of 0 accepts any positive distance.
func groupEdges(ids []ID, edges []Edge, owner func(Edge) ID, distance int) map[ID][]Edge {
	requested := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}
	grouped := make(map[ID][]Edge, len(ids))
	for _, e := range edges {
		if !e.HierarchyOnly() {
			continue
		}
		if distance > 0 && e.Hierarchy != distance {
			continue
		}
		o := owner(e)
		if _, ok := requested[o]; !ok {
			continue
		}
		grouped[o] = append(grouped[o], e)
	}
	return grouped
}
