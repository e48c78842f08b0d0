package hyperbatch

import "context"

// Direction selects which side of the hierarchy an edge query walks.
type Direction int

const (
	// Up selects edges whose descendant is in the batch; the peer is the ancestor.
	Up Direction = iota
	// Down selects edges whose ancestor is in the batch; the peer is the descendant.
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// EdgeQuery narrows a bulk edge fetch.
type EdgeQuery struct {
	Direction Direction
	// MaxDistance bounds the hierarchy distance; 0 means unbounded.
	MaxDistance int
}

// Peer summarizes the entity on the far side of an edge.
type Peer struct {
	ID          ID
	ContainerID ID
	Subject     string
}

// Edge is one row of the relation table. From is the ancestor and To the
// descendant; Hierarchy is the distance between them. The remaining kind
// counters are carried so the aggregator can enforce exclusivity itself.
type Edge struct {
	From, To   ID
	Hierarchy  int
	Relates    int
	Duplicates int
	Blocks     int
	Follows    int
	Includes   int
	Requires   int
	Peer       Peer
}

// HierarchyOnly reports whether the edge is a pure hierarchy edge: a
// positive distance and no other relation kind set.
func (e Edge) HierarchyOnly() bool {
	return e.Hierarchy > 0 &&
		e.Relates == 0 && e.Duplicates == 0 && e.Blocks == 0 &&
		e.Follows == 0 && e.Includes == 0 && e.Requires == 0
}

// RelationGraph fetches hierarchy edges for a whole batch in one query.
type RelationGraph interface {
	BulkEdges(ctx context.Context, ids []ID, q EdgeQuery) ([]Edge, error)
}

// EntityStore loads entities by ID. Missing IDs are simply absent from the result.
type EntityStore interface {
	BulkFetch(ctx context.Context, ids []ID) ([]Entity, error)
}

// Target is a resolved association target.
type Target struct {
	ID   ID
	Name string
	// Path is the collection segment of the target's href, e.g. "users" or "groups".
	Path string
}

// Attr implements schema.EntityView for association title templates.
func (t Target) Attr(name string) (any, bool) {
	switch name {
	case "id":
		return t.ID, true
	case "name":
		return t.Name, true
	case "path":
		return t.Path, true
	}
	return nil, false
}

// AssociationResolver resolves association targets of one join target in bulk.
type AssociationResolver interface {
	ResolveTargets(ctx context.Context, joinTarget string, ids []ID) (map[ID]Target, error)
}

// WatcherStore reports which of ids the viewer watches.
type WatcherStore interface {
	Watching(ctx context.Context, viewer Viewer, ids []ID) (map[ID]bool, error)
}

// Action is one entry of an action list, such as a custom workflow action.
type Action struct {
	ID       ID
	Name     string
	Position int
	// Path is the collection segment of the action's href, e.g. "custom_actions".
	Path string
}

// ActionSource lists, per entity, the actions of one action list that apply
// to it, ordered by position. Entities without actions may be absent.
type ActionSource interface {
	Actions(ctx context.Context, list string, viewer Viewer, ids []ID) (map[ID][]Action, error)
}

// Stores bundles the collaborators a Projector reads from.
// Watchers may be nil, in which case the viewer watches nothing. Actions may
// be nil, in which case action lists are left out of documents.
type Stores struct {
	Visibility   Visibility
	Graph        RelationGraph
	Entities     EntityStore
	Associations AssociationResolver
	Watchers     WatcherStore
	Actions      ActionSource
}
