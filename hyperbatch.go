// Package hyperbatch renders batches of work items into hypermedia JSON
// documents with a bounded number of store round trips per batch.
//
// # Overview
//
// A Projector takes a set of entity IDs and a Viewer and returns one
// Document per ID. The shape of each document is declared once in a
// schema.Registry; the Projector resolves everything the registry needs in
// bulk: one visibility query per distinct permission, one entity fetch, one
// edge fetch per hierarchy direction, one watcher lookup and one resolver
// query per association target. Nothing is fetched per entity.
//
//	reg, _ := workpackage.NewRegistry()
//	store := pgstore.New(db)
//	proj := hyperbatch.NewProjector(reg, hyperbatch.Stores{
//	    Visibility:   hyperbatch.NewChecker(db),
//	    Graph:        store,
//	    Entities:     store,
//	    Associations: store,
//	    Watchers:     store,
//	    Actions:      store,
//	}, hyperbatch.WithCache(hyperbatch.NewCache(hyperbatch.WithTTL(time.Minute))))
//	docs, err := proj.Project(ctx, []hyperbatch.ID{1, 2, 3}, viewer)
//
// # Totality
//
// Every requested ID is present in the result. IDs that do not exist or
// that the viewer may not see map to an empty document, so callers cannot
// distinguish the two.
//
// # Hierarchy
//
// The Aggregator computes ancestors (farthest first), direct children
// (ascending ID) and the direct parent of every entity in the batch from two
// bulk edge fetches. Peers in containers the viewer cannot see are dropped
// silently.
//
// # Caching
//
// The cacheable part of a document is stored under a Key derived from the
// document kind, locale, the entity checksum, the permissions the viewer
// holds on the entity's container and the global settings the registry
// reads. Viewer-specific parts (watch state, spent time, hierarchy links)
// are merged fresh on every call.
//
// # Transaction Support
//
// The Checker and the pgstore collaborators accept *sql.DB, *sql.Tx or
// *sql.Conn, so documents can reflect uncommitted changes. When a *sql.Tx is
// used, keep WithConcurrency at its default of 1.
package hyperbatch

import (
	"context"
	"database/sql"
	"slices"
	"strconv"

	"github.com/pthm/hyperbatch/schema"
)

// ID identifies an entity or container. IDs are positive; zero means unset.
type ID int64

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Viewer is the principal a batch is rendered for.
type Viewer struct {
	ID     ID
	Admin  bool
	Locale string
}

// Role returns the part of the viewer the registry is queried with.
func (v Viewer) Role() schema.Role {
	return schema.Role{Admin: v.Admin}
}

// ContainerSet is the set of containers (projects) a viewer holds one
// permission on. The zero value is empty.
type ContainerSet struct {
	all bool
	ids map[ID]struct{}
}

// NewContainerSet returns a set holding ids.
func NewContainerSet(ids ...ID) ContainerSet {
	s := ContainerSet{ids: make(map[ID]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// AllContainers returns a set that contains every container.
func AllContainers() ContainerSet {
	return ContainerSet{all: true}
}

// Contains reports whether id is in the set.
func (s ContainerSet) Contains(id ID) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// IDs returns the members in ascending order. It returns nil for AllContainers.
func (s ContainerSet) IDs() []ID {
	if s.all {
		return nil
	}
	out := make([]ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Querier executes queries against PostgreSQL.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer extends Querier with ExecContext for migrations.
type Execer interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// uniqueIDs returns ids without duplicates, keeping first occurrences.
func uniqueIDs(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
