package workpackage_test

import (
	"context"
	"slices"
	"time"

	"github.com/pthm/hyperbatch"
)

// memStore serves every collaborator from memory. Edges only need From, To
// and Hierarchy; the peer is filled in per direction.
type memStore struct {
	grants   map[string][]hyperbatch.ID
	entities []hyperbatch.Entity
	edges    []hyperbatch.Edge
	targets  map[string]map[hyperbatch.ID]hyperbatch.Target
	watching map[hyperbatch.ID]bool
}

func (m *memStore) AllowedContainers(_ context.Context, viewer hyperbatch.Viewer, permission string) (hyperbatch.ContainerSet, error) {
	if viewer.Admin {
		return hyperbatch.AllContainers(), nil
	}
	return hyperbatch.NewContainerSet(m.grants[permission]...), nil
}

func (m *memStore) BulkEdges(_ context.Context, ids []hyperbatch.ID, q hyperbatch.EdgeQuery) ([]hyperbatch.Edge, error) {
	var out []hyperbatch.Edge
	for _, e := range m.edges {
		own, peer := e.To, e.From
		if q.Direction == hyperbatch.Down {
			own, peer = e.From, e.To
		}
		if !slices.Contains(ids, own) || (q.MaxDistance > 0 && e.Hierarchy > q.MaxDistance) {
			continue
		}
		i := slices.IndexFunc(m.entities, func(x hyperbatch.Entity) bool { return x.ID == peer })
		if i < 0 {
			continue
		}
		e.Peer = hyperbatch.Peer{ID: peer, ContainerID: m.entities[i].ContainerID, Subject: m.entities[i].Subject}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) BulkFetch(_ context.Context, ids []hyperbatch.ID) ([]hyperbatch.Entity, error) {
	var out []hyperbatch.Entity
	for _, e := range m.entities {
		if slices.Contains(ids, e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ResolveTargets(_ context.Context, joinTarget string, ids []hyperbatch.ID) (map[hyperbatch.ID]hyperbatch.Target, error) {
	out := map[hyperbatch.ID]hyperbatch.Target{}
	for _, id := range ids {
		if t, ok := m.targets[joinTarget][id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (m *memStore) Watching(_ context.Context, _ hyperbatch.Viewer, ids []hyperbatch.ID) (map[hyperbatch.ID]bool, error) {
	out := map[hyperbatch.ID]bool{}
	for _, id := range ids {
		if m.watching[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memStore) stores() hyperbatch.Stores {
	return hyperbatch.Stores{Visibility: m, Graph: m, Entities: m, Associations: m, Watchers: m}
}

const project = 100

var allPermissions = []string{
	"view_work_packages", "edit_work_packages", "delete_work_packages", "add_work_packages",
	"log_time", "view_time_entries", "add_work_package_watchers", "export_work_packages",
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func target(id hyperbatch.ID, name, path string) hyperbatch.Target {
	return hyperbatch.Target{ID: id, Name: name, Path: path}
}

// newMemStore holds a task (1) and a milestone (2) in project 100, with every
// permission granted on it.
func newMemStore() *memStore {
	estimate := 2.5
	done := 40
	grants := map[string][]hyperbatch.ID{}
	for _, p := range allPermissions {
		grants[p] = []hyperbatch.ID{project}
	}

	return &memStore{
		grants: grants,
		entities: []hyperbatch.Entity{
			{
				ID: 1, ContainerID: project, ContainerIdentifier: "platform",
				TypeID: 3, StatusID: 1, PriorityID: 2,
				AuthorID: 8, AssigneeID: 7, ResponsibleID: 9,
				Subject: "Write docs", Description: "Some *text*",
				StartDate: date(2024, 3, 1), DueDate: date(2024, 3, 8),
				EstimatedHours: &estimate, DoneRatio: &done,
				LockVersion: 2,
				CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
				UpdatedAt:   time.Date(2024, 1, 3, 3, 4, 5, 0, time.UTC),
				Checksum:    "c1",
			},
			{
				ID: 2, ContainerID: project, ContainerIdentifier: "platform",
				TypeID: 4, Milestone: true, StatusID: 1, PriorityID: 2,
				Subject:   "Release",
				StartDate: date(2024, 4, 1),
				DueDate:   date(2024, 4, 1),
				CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
				UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
				Checksum:  "c2",
			},
		},
		targets: map[string]map[hyperbatch.ID]hyperbatch.Target{
			"types":      {3: target(3, "Task", "types"), 4: target(4, "Milestone", "types")},
			"statuses":   {1: target(1, "New", "statuses")},
			"priorities": {2: target(2, "Normal", "priorities")},
			"projects":   {project: target(project, "Platform", "projects")},
			"principals": {
				7: target(7, "Ada Lovelace", "users"),
				8: target(8, "Grace Hopper", "users"),
				9: target(9, "Reviewers", "groups"),
			},
		},
		watching: map[hyperbatch.ID]bool{},
	}
}
