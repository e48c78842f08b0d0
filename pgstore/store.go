package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pthm/hyperbatch"
)

// Store reads work packages, hierarchy edges, association targets, watchers
// and custom actions from PostgreSQL. It holds no state besides the handle and is
// safe for concurrent use when the handle is.
type Store struct {
	q hyperbatch.Querier
}

// New returns a store over *sql.DB, *sql.Tx or *sql.Conn.
func New(q hyperbatch.Querier) *Store {
	return &Store{q: q}
}

func int64s(ids []hyperbatch.ID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// BulkEdges implements hyperbatch.RelationGraph.
func (s *Store) BulkEdges(ctx context.Context, ids []hyperbatch.ID, q hyperbatch.EdgeQuery) ([]hyperbatch.Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{pq.Array(int64s(ids))}
	if q.MaxDistance > 0 {
		args = append(args, q.MaxDistance)
	}

	op := "bulk_edges_" + q.Direction.String()
	rows, err := s.q.QueryContext(ctx, edgesQuery(q), args...)
	if err != nil {
		return nil, hyperbatch.MapStoreError(op, err)
	}
	defer func() { _ = rows.Close() }()

	var edges []hyperbatch.Edge
	for rows.Next() {
		var (
			e                   hyperbatch.Edge
			from, to            int64
			peerID, peerProject int64
		)
		if err := rows.Scan(
			&from, &to, &e.Hierarchy,
			&e.Relates, &e.Duplicates, &e.Blocks, &e.Follows, &e.Includes, &e.Requires,
			&peerID, &peerProject, &e.Peer.Subject,
		); err != nil {
			return nil, hyperbatch.MapStoreError(op, err)
		}
		e.From, e.To = hyperbatch.ID(from), hyperbatch.ID(to)
		e.Peer.ID, e.Peer.ContainerID = hyperbatch.ID(peerID), hyperbatch.ID(peerProject)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, hyperbatch.MapStoreError(op, err)
	}
	return edges, nil
}

// BulkFetch implements hyperbatch.EntityStore.
func (s *Store) BulkFetch(ctx context.Context, ids []hyperbatch.ID) ([]hyperbatch.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q.QueryContext(ctx, entitiesQuery(), pq.Array(int64s(ids)))
	if err != nil {
		return nil, hyperbatch.MapStoreError("bulk_fetch", err)
	}
	defer func() { _ = rows.Close() }()

	var out []hyperbatch.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, hyperbatch.MapStoreError("bulk_fetch", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, hyperbatch.MapStoreError("bulk_fetch", err)
	}
	return out, nil
}

func scanEntity(rows *sql.Rows) (hyperbatch.Entity, error) {
	var (
		e                                                hyperbatch.Entity
		id, project, typeID, status, priority            int64
		category, author, assignee, responsible, version int64
		start, due                                       sql.NullTime
		estimated, derived                               sql.NullFloat64
		done                                             sql.NullInt64
	)
	err := rows.Scan(
		&id, &project, &e.ContainerIdentifier, &typeID, &e.Milestone, &status, &priority,
		&category, &author, &assignee, &responsible, &version,
		&e.Subject, &e.Description,
		&start, &due, &estimated, &derived, &e.SpentHours, &done,
		&e.LockVersion, &e.CreatedAt, &e.UpdatedAt, &e.Checksum,
	)
	if err != nil {
		return hyperbatch.Entity{}, err
	}

	e.ID, e.ContainerID, e.TypeID = hyperbatch.ID(id), hyperbatch.ID(project), hyperbatch.ID(typeID)
	e.StatusID, e.PriorityID = hyperbatch.ID(status), hyperbatch.ID(priority)
	e.CategoryID, e.AuthorID = hyperbatch.ID(category), hyperbatch.ID(author)
	e.AssigneeID, e.ResponsibleID = hyperbatch.ID(assignee), hyperbatch.ID(responsible)
	e.VersionID = hyperbatch.ID(version)

	e.StartDate = nullDate(start)
	e.DueDate = nullDate(due)
	if estimated.Valid {
		e.EstimatedHours = &estimated.Float64
	}
	if derived.Valid {
		e.DerivedEstimatedHours = &derived.Float64
	}
	if done.Valid {
		d := int(done.Int64)
		e.DoneRatio = &d
	}
	return e, nil
}

// nullDate drops the time zone a driver may attach to a DATE column.
func nullDate(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	d := time.Date(t.Time.Year(), t.Time.Month(), t.Time.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// ResolveTargets implements hyperbatch.AssociationResolver.
func (s *Store) ResolveTargets(ctx context.Context, joinTarget string, ids []hyperbatch.ID) (map[hyperbatch.ID]hyperbatch.Target, error) {
	out := make(map[hyperbatch.ID]hyperbatch.Target, len(ids))
	query, err := targetsQuery(joinTarget)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	op := "resolve_" + joinTarget
	rows, err := s.q.QueryContext(ctx, query, pq.Array(int64s(ids)))
	if err != nil {
		return nil, hyperbatch.MapStoreError(op, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			t  hyperbatch.Target
			id int64
		)
		if err := rows.Scan(&id, &t.Name, &t.Path); err != nil {
			return nil, hyperbatch.MapStoreError(op, err)
		}
		t.ID = hyperbatch.ID(id)
		out[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, hyperbatch.MapStoreError(op, err)
	}
	return out, nil
}

// Watching implements hyperbatch.WatcherStore.
func (s *Store) Watching(ctx context.Context, viewer hyperbatch.Viewer, ids []hyperbatch.ID) (map[hyperbatch.ID]bool, error) {
	out := make(map[hyperbatch.ID]bool)
	if len(ids) == 0 || viewer.ID == 0 {
		return out, nil
	}
	rows, err := s.q.QueryContext(ctx, watchersQuery(), int64(viewer.ID), pq.Array(int64s(ids)))
	if err != nil {
		return nil, hyperbatch.MapStoreError("watchers", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, hyperbatch.MapStoreError("watchers", err)
		}
		out[hyperbatch.ID(id)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, hyperbatch.MapStoreError("watchers", err)
	}
	return out, nil
}

// ErrUnknownActionList is returned for an action list the store has no
// table for.
var ErrUnknownActionList = errors.New("pgstore: unknown action list")

// CustomActionsList is the action list served from the custom_actions table.
const CustomActionsList = "customActions"

// Actions lists the custom actions applying to each of ids. Only
// CustomActionsList is served; availability depends on the work package,
// not on the viewer.
func (s *Store) Actions(ctx context.Context, list string, _ hyperbatch.Viewer, ids []hyperbatch.ID) (map[hyperbatch.ID][]hyperbatch.Action, error) {
	if list != CustomActionsList {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionList, list)
	}
	out := make(map[hyperbatch.ID][]hyperbatch.Action)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.q.QueryContext(ctx, customActionsQuery(), pq.Array(int64s(ids)))
	if err != nil {
		return nil, hyperbatch.MapStoreError("custom actions", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var wp, id int64
		a := hyperbatch.Action{Path: "custom_actions"}
		if err := rows.Scan(&wp, &id, &a.Name, &a.Position); err != nil {
			return nil, hyperbatch.MapStoreError("custom actions", err)
		}
		a.ID = hyperbatch.ID(id)
		out[hyperbatch.ID(wp)] = append(out[hyperbatch.ID(wp)], a)
	}
	if err := rows.Err(); err != nil {
		return nil, hyperbatch.MapStoreError("custom actions", err)
	}
	return out, nil
}

var (
	_ hyperbatch.RelationGraph       = (*Store)(nil)
	_ hyperbatch.EntityStore         = (*Store)(nil)
	_ hyperbatch.AssociationResolver = (*Store)(nil)
	_ hyperbatch.WatcherStore        = (*Store)(nil)
	_ hyperbatch.ActionSource        = (*Store)(nil)
)
