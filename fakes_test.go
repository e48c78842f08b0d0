package hyperbatch_test

import (
	"context"
	"slices"
	"sync"

	"github.com/pthm/hyperbatch"
)

// fakeVisibility grants permissions per container and counts queries.
type fakeVisibility struct {
	mu     sync.Mutex
	grants map[string][]hyperbatch.ID
	calls  []string
	err    error
}

func (f *fakeVisibility) AllowedContainers(_ context.Context, _ hyperbatch.Viewer, permission string) (hyperbatch.ContainerSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, permission)
	if f.err != nil {
		return hyperbatch.ContainerSet{}, f.err
	}
	return hyperbatch.NewContainerSet(f.grants[permission]...), nil
}

func (f *fakeVisibility) queried() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.calls)
	slices.Sort(out)
	return out
}

// fakeStore is an in-memory entity store, relation graph, association
// resolver and watcher store. Edges are closure rows: From is the ancestor,
// To the descendant.
type fakeStore struct {
	mu       sync.Mutex
	entities map[hyperbatch.ID]hyperbatch.Entity
	edges    []hyperbatch.Edge
	targets  map[string]map[hyperbatch.ID]hyperbatch.Target
	watching map[hyperbatch.ID]bool
	actions  map[hyperbatch.ID][]hyperbatch.Action
	calls    map[string]int
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities: map[hyperbatch.ID]hyperbatch.Entity{},
		targets:  map[string]map[hyperbatch.ID]hyperbatch.Target{},
		watching: map[hyperbatch.ID]bool{},
		actions:  map[hyperbatch.ID][]hyperbatch.Action{},
		calls:    map[string]int{},
	}
}

func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStore) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.err
}

func (f *fakeStore) BulkFetch(_ context.Context, ids []hyperbatch.ID) ([]hyperbatch.Entity, error) {
	if err := f.record("BulkFetch"); err != nil {
		return nil, err
	}
	var out []hyperbatch.Entity
	for _, id := range ids {
		if e, ok := f.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) BulkEdges(_ context.Context, ids []hyperbatch.ID, q hyperbatch.EdgeQuery) ([]hyperbatch.Edge, error) {
	if err := f.record("BulkEdges"); err != nil {
		return nil, err
	}
	var out []hyperbatch.Edge
	for _, e := range f.edges {
		if q.MaxDistance > 0 && e.Hierarchy > q.MaxDistance {
			continue
		}
		own, peer := e.To, e.From
		if q.Direction == hyperbatch.Down {
			own, peer = e.From, e.To
		}
		if !slices.Contains(ids, own) {
			continue
		}
		p := f.entities[peer]
		e.Peer = hyperbatch.Peer{ID: peer, ContainerID: p.ContainerID, Subject: p.Subject}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) ResolveTargets(_ context.Context, joinTarget string, ids []hyperbatch.ID) (map[hyperbatch.ID]hyperbatch.Target, error) {
	if err := f.record("ResolveTargets:" + joinTarget); err != nil {
		return nil, err
	}
	out := map[hyperbatch.ID]hyperbatch.Target{}
	for _, id := range ids {
		if t, ok := f.targets[joinTarget][id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (f *fakeStore) Watching(_ context.Context, _ hyperbatch.Viewer, ids []hyperbatch.ID) (map[hyperbatch.ID]bool, error) {
	if err := f.record("Watching"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[hyperbatch.ID]bool{}
	for _, id := range ids {
		if f.watching[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeStore) Actions(_ context.Context, list string, _ hyperbatch.Viewer, ids []hyperbatch.ID) (map[hyperbatch.ID][]hyperbatch.Action, error) {
	if err := f.record("Actions:" + list); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[hyperbatch.ID][]hyperbatch.Action{}
	for _, id := range ids {
		if a, ok := f.actions[id]; ok {
			out[id] = slices.Clone(a)
		}
	}
	return out, nil
}

func (f *fakeStore) setActions(id hyperbatch.ID, actions ...hyperbatch.Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions[id] = actions
}

func (f *fakeStore) setWatching(id hyperbatch.ID, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watching[id] = v
}

func (f *fakeStore) stores(vis hyperbatch.Visibility) hyperbatch.Stores {
	return hyperbatch.Stores{
		Visibility:   vis,
		Graph:        f,
		Entities:     f,
		Associations: f,
		Watchers:     f,
		Actions:      f,
	}
}

// Containers used by the fixture.
const (
	publicProject  hyperbatch.ID = 100
	privateProject hyperbatch.ID = 200
)

// fixture builds a small tree:
//
//	10 (private) > 11 > 1 > {2, 5}
//	3 (private)
func fixture() (*fakeVisibility, *fakeStore) {
	vis := &fakeVisibility{grants: map[string][]hyperbatch.ID{
		"view_work_packages": {publicProject},
		"edit_work_packages": {publicProject},
		"view_time_entries":  {publicProject},
	}}

	store := newFakeStore()
	add := func(id, container hyperbatch.ID, subject string) {
		store.entities[id] = hyperbatch.Entity{
			ID:          id,
			ContainerID: container,
			TypeID:      3,
			StatusID:    1,
			PriorityID:  2,
			Subject:     subject,
			Checksum:    "v1",
		}
	}
	add(10, privateProject, "Roadmap")
	add(11, publicProject, "Epic")
	add(1, publicProject, "Write docs")
	add(2, publicProject, "Child A")
	add(5, publicProject, "Child B")
	add(3, privateProject, "Secret")

	one := store.entities[1]
	one.SpentHours = 1.5
	one.AssigneeID = 7
	store.entities[1] = one

	store.edges = []hyperbatch.Edge{
		{From: 10, To: 11, Hierarchy: 1},
		{From: 10, To: 1, Hierarchy: 2},
		{From: 11, To: 1, Hierarchy: 1},
		{From: 10, To: 2, Hierarchy: 3},
		{From: 11, To: 2, Hierarchy: 2},
		{From: 1, To: 2, Hierarchy: 1},
		{From: 1, To: 5, Hierarchy: 1},
		// A non-hierarchy relation must never show up as a child.
		{From: 1, To: 3, Relates: 1},
	}

	store.targets["principals"] = map[hyperbatch.ID]hyperbatch.Target{
		7: {ID: 7, Name: "Ada Lovelace", Path: "users"},
	}
	return vis, store
}
