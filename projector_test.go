package hyperbatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/hyperbatch"
	"github.com/pthm/hyperbatch/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewBuilder("WorkPackage", hyperbatch.EntityAttributes,
		schema.WithViewPermission("view_work_packages"),
	).
		DeclareProperty("id", schema.Column("id")).
		DeclareProperty("subject", schema.Column("subject")).
		DeclareProperty("spentTime", schema.Duration("spent_hours", false),
			schema.RequirePermission("view_time_entries"),
			schema.UncacheableProperty()).
		DeclareActionLink("self", schema.Sprintf("/api/v3/work_packages/%s", "id"),
			schema.WithTitle(schema.Attr("subject"))).
		DeclareActionLink("update", schema.Sprintf("/api/v3/work_packages/%s", "id"),
			schema.WithPermission("edit_work_packages"),
			schema.WithMethod(schema.MethodPatch)).
		DeclareActionLink("watch", schema.Sprintf("/api/v3/work_packages/%s/watchers", "id"),
			schema.WithMethod(schema.MethodPost),
			schema.WithCondition(schema.Not(schema.ViewerWatching())),
			schema.UncacheableLink()).
		DeclareActionLink("configureForm", schema.Sprintf("/types/%s/edit", "type_id"),
			schema.WithMediaType("text/html"),
			schema.AdminOnly()).
		DeclareAssociationLink("assignee", "principals", schema.WithForeignKey("assigned_to_id")).
		DeclareAssociationLink("version", "versions", schema.WithForeignKey("fixed_version_id")).
		Build()
	require.NoError(t, err)
	return reg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marshal(t *testing.T, doc *hyperbatch.Document) string {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(b)
}

func links(t *testing.T, doc *hyperbatch.Document) *hyperbatch.Document {
	t.Helper()
	v, ok := doc.Get("_links")
	require.True(t, ok, "document has no _links")
	l, ok := v.(*hyperbatch.Document)
	require.True(t, ok)
	return l
}

var editor = hyperbatch.Viewer{ID: 7, Locale: "en"}

func TestProject_Document(t *testing.T) {
	vis, store := fixture()
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis), hyperbatch.WithLogger(quietLogger()))

	docs, err := p.Project(context.Background(), []hyperbatch.ID{1}, editor)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[1]
	assert.JSONEq(t, `{
		"_type": "WorkPackage",
		"id": 1,
		"subject": "Write docs",
		"spentTime": "PT1H30M",
		"_links": {
			"self": {"href": "/api/v3/work_packages/1", "title": "Write docs"},
			"update": {"href": "/api/v3/work_packages/1", "method": "patch"},
			"watch": {"href": "/api/v3/work_packages/1/watchers", "method": "post"},
			"assignee": {"href": "/api/v3/users/7", "title": "Ada Lovelace"},
			"version": {"href": null, "title": null},
			"ancestors": [{"href": "/api/v3/work_packages/11", "title": "Epic"}],
			"children": [
				{"href": "/api/v3/work_packages/2", "title": "Child A"},
				{"href": "/api/v3/work_packages/5", "title": "Child B"}
			],
			"parent": {"href": "/api/v3/work_packages/11", "title": "Epic"}
		}
	}`, marshal(t, doc))

	assert.Equal(t, []string{"_type", "id", "subject", "spentTime", "_links"}, doc.Keys())
	assert.Equal(t,
		[]string{"self", "update", "watch", "assignee", "version", "ancestors", "children", "parent"},
		links(t, doc).Keys())
}

func TestProject_Totality(t *testing.T) {
	vis, store := fixture()
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis), hyperbatch.WithLogger(quietLogger()))

	docs, err := p.Project(context.Background(), []hyperbatch.ID{1, 99, 3, 1}, editor)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "{}", marshal(t, docs[99]), "missing entity renders empty")
	assert.Equal(t, "{}", marshal(t, docs[3]), "invisible entity renders empty")
	assert.NotZero(t, docs[1].Len())
}

func TestProject_EmptyBatch(t *testing.T) {
	vis, store := fixture()
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis))

	docs, err := p.Project(context.Background(), nil, editor)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, store.count("BulkFetch"))
}

func TestProject_PermissionGating(t *testing.T) {
	vis, store := fixture()
	vis.grants = map[string][]hyperbatch.ID{
		"view_work_packages": {publicProject},
	}
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis), hyperbatch.WithLogger(quietLogger()))

	docs, err := p.Project(context.Background(), []hyperbatch.ID{1}, editor)
	require.NoError(t, err)

	doc := docs[1]
	_, ok := doc.Get("spentTime")
	assert.False(t, ok, "spentTime needs view_time_entries")

	l := links(t, doc)
	_, ok = l.Get("update")
	assert.False(t, ok, "update needs edit_work_packages")
	_, ok = l.Get("self")
	assert.True(t, ok)
	assert.Equal(t, []string{"_type", "id", "subject", "_links"}, doc.Keys())
}

func TestProject_AdminOnlyLinks(t *testing.T) {
	vis, store := fixture()
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis), hyperbatch.WithLogger(quietLogger()))
	ctx := context.Background()

	docs, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
	require.NoError(t, err)
	_, ok := links(t, docs[1]).Get("configureForm")
	assert.False(t, ok)

	admin := hyperbatch.Viewer{ID: 1, Admin: true, Locale: "en"}
	docs, err = p.Project(ctx, []hyperbatch.ID{1}, admin)
	require.NoError(t, err)
	v, ok := links(t, docs[1]).Get("configureForm")
	require.True(t, ok)
	assert.Equal(t, hyperbatch.Link{Href: "/types/3/edit", Type: "text/html"}, v)
}

func TestProject_Watching(t *testing.T) {
	vis, store := fixture()
	store.setWatching(1, true)
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis), hyperbatch.WithLogger(quietLogger()))

	docs, err := p.Project(context.Background(), []hyperbatch.ID{1, 2}, editor)
	require.NoError(t, err)

	_, ok := links(t, docs[1]).Get("watch")
	assert.False(t, ok, "already watching")
	_, ok = links(t, docs[2]).Get("watch")
	assert.True(t, ok)
}

func TestProject_Associations(t *testing.T) {
	vis, store := fixture()
	e := store.entities[2]
	e.AssigneeID = 404 // dangling reference
	e.VersionID = 9
	store.entities[2] = e
	store.targets["versions"] = map[hyperbatch.ID]hyperbatch.Target{
		9: {ID: 9, Name: "1.0", Path: "versions"},
	}
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis),
		hyperbatch.WithLogger(quietLogger()),
		hyperbatch.WithAPIBase("/api/v4"),
	)

	docs, err := p.Project(context.Background(), []hyperbatch.ID{2}, editor)
	require.NoError(t, err)

	l := links(t, docs[2])
	assignee, _ := l.Get("assignee")
	assert.Equal(t, hyperbatch.NullableRef{}, assignee)

	version, _ := l.Get("version")
	b, err := json.Marshal(version)
	require.NoError(t, err)
	assert.JSONEq(t, `{"href": "/api/v4/versions/9", "title": "1.0"}`, string(b))
}

func TestProject_BoundedQueries(t *testing.T) {
	ids := []hyperbatch.ID{1, 2, 5, 11, 3, 99}
	for _, n := range []int{1, len(ids)} {
		vis, store := fixture()
		p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis), hyperbatch.WithLogger(quietLogger()))

		_, err := p.Project(context.Background(), ids[:n], editor)
		require.NoError(t, err)

		assert.Equal(t,
			[]string{"edit_work_packages", "view_time_entries", "view_work_packages"},
			vis.queried(), "one visibility query per permission")
		assert.Equal(t, 1, store.count("BulkFetch"))
		assert.Equal(t, 2, store.count("BulkEdges"))
		assert.Equal(t, 1, store.count("Watching"))
		assert.LessOrEqual(t, store.count("ResolveTargets:principals"), 1)
	}
}

func TestProject_Cache(t *testing.T) {
	vis, store := fixture()
	cache := hyperbatch.NewCache()
	reg := prometheus.NewRegistry()
	metrics, err := hyperbatch.NewMetrics(reg)
	require.NoError(t, err)

	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis),
		hyperbatch.WithLogger(quietLogger()),
		hyperbatch.WithCache(cache),
		hyperbatch.WithMetrics(metrics),
	)
	ctx := context.Background()

	first, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Size())
	assert.Equal(t, 1, store.count("ResolveTargets:principals"))

	t.Run("hit skips association resolution", func(t *testing.T) {
		second, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		assert.Equal(t, marshal(t, first[1]), marshal(t, second[1]))
		assert.Equal(t, 1, store.count("ResolveTargets:principals"))
	})

	t.Run("viewer-specific parts are merged fresh", func(t *testing.T) {
		store.setWatching(1, true)
		docs, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		_, ok := links(t, docs[1]).Get("watch")
		assert.False(t, ok)

		store.setWatching(1, false)
		docs, err = p.Project(ctx, []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		_, ok = links(t, docs[1]).Get("watch")
		assert.True(t, ok, "cached entry must not be mutated by a merge")
	})

	t.Run("checksum change misses", func(t *testing.T) {
		e := store.entities[1]
		e.Subject = "Write better docs"
		e.Checksum = "v2"
		store.entities[1] = e

		docs, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		v, _ := docs[1].Get("subject")
		assert.Equal(t, "Write better docs", v)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("different grants do not share entries", func(t *testing.T) {
		vis.grants["edit_work_packages"] = nil
		docs, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		_, ok := links(t, docs[1]).Get("update")
		assert.False(t, ok)
		assert.Equal(t, 3, cache.Size())
	})

	assert.Equal(t, float64(3), counterValue(t, reg, "hyperbatch_cache_lookups_total", "miss"))
	assert.Equal(t, float64(3), counterValue(t, reg, "hyperbatch_cache_lookups_total", "hit"))
}

// counterValue reads one labelled counter from a registry.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}

func TestProject_SettingDependentTitles(t *testing.T) {
	vis, store := fixture()
	reg, err := schema.NewBuilder("WorkPackage", hyperbatch.EntityAttributes,
		schema.WithViewPermission("view_work_packages"),
	).
		DeclareProperty("id", schema.Column("id")).
		DeclareAssociationLink("assignee", "principals",
			schema.WithForeignKey("assigned_to_id"),
			schema.WithTargetTitle(schema.If(schema.SettingEnabled("show_names"), schema.Attr("name"), schema.Lit("hidden")))).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"show_names"}, reg.CacheSettings())

	cache := hyperbatch.NewCache()
	project := func(settings schema.Settings) string {
		p := hyperbatch.NewProjector(reg, store.stores(vis),
			hyperbatch.WithLogger(quietLogger()),
			hyperbatch.WithCache(cache),
			hyperbatch.WithSettings(settings))
		docs, err := p.Project(context.Background(), []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		v, ok := links(t, docs[1]).Get("assignee")
		require.True(t, ok)
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return string(b)
	}

	assert.JSONEq(t, `{"href": "/api/v3/users/7", "title": "Ada Lovelace"}`,
		project(schema.Settings{"show_names": "true"}))
	assert.JSONEq(t, `{"href": "/api/v3/users/7", "title": "hidden"}`,
		project(schema.Settings{"show_names": "false"}))
	assert.Equal(t, 2, cache.Size())
}

func TestProject_ActionLists(t *testing.T) {
	vis, store := fixture()
	reg, err := schema.NewBuilder("WorkPackage", hyperbatch.EntityAttributes,
		schema.WithViewPermission("view_work_packages"),
	).
		DeclareProperty("id", schema.Column("id")).
		DeclareActionLink("self", schema.Sprintf("/api/v3/work_packages/%s", "id")).
		DeclareActionList("customActions", "edit_work_packages").
		Build()
	require.NoError(t, err)
	assert.Contains(t, reg.Permissions(schema.Role{}), "edit_work_packages")

	store.setActions(1,
		hyperbatch.Action{ID: 4, Name: "Escalate", Position: 1, Path: "custom_actions"},
		hyperbatch.Action{ID: 2, Name: "Close", Position: 2, Path: "custom_actions"})
	cache := hyperbatch.NewCache()
	p := hyperbatch.NewProjector(reg, store.stores(vis),
		hyperbatch.WithLogger(quietLogger()),
		hyperbatch.WithCache(cache))
	ctx := context.Background()

	docs, err := p.Project(ctx, []hyperbatch.ID{1, 2}, editor)
	require.NoError(t, err)
	assert.Equal(t, 1, store.count("Actions:customActions"), "one query per list and batch")

	l := links(t, docs[1])
	assert.Equal(t, []string{"self", "customActions", "ancestors", "children", "parent"}, l.Keys())
	actions, _ := l.Get("customActions")
	assert.Equal(t, []hyperbatch.Ref{
		{Href: "/api/v3/custom_actions/4", Title: "Escalate"},
		{Href: "/api/v3/custom_actions/2", Title: "Close"},
	}, actions)

	none, _ := links(t, docs[2]).Get("customActions")
	assert.Equal(t, []hyperbatch.Ref{}, none, "no actions renders an empty list")

	t.Run("resolved fresh on cache hits", func(t *testing.T) {
		store.setActions(1, hyperbatch.Action{ID: 9, Name: "Reopen", Path: "custom_actions"})
		docs, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		actions, _ := links(t, docs[1]).Get("customActions")
		assert.Equal(t, []hyperbatch.Ref{{Href: "/api/v3/custom_actions/9", Title: "Reopen"}}, actions)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("empty without permission", func(t *testing.T) {
		vis.grants["edit_work_packages"] = nil
		docs, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		actions, _ := links(t, docs[1]).Get("customActions")
		assert.Equal(t, []hyperbatch.Ref{}, actions)
	})

	t.Run("left out without an action source", func(t *testing.T) {
		stores := store.stores(vis)
		stores.Actions = nil
		docs, err := hyperbatch.NewProjector(reg, stores, hyperbatch.WithLogger(quietLogger())).
			Project(ctx, []hyperbatch.ID{1}, editor)
		require.NoError(t, err)
		_, ok := links(t, docs[1]).Get("customActions")
		assert.False(t, ok)
	})
}

func TestProject_StoreFailure(t *testing.T) {
	vis, store := fixture()
	store.err = hyperbatch.MapStoreError("bulk_fetch", errors.New("connection refused"))
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis))

	docs, err := p.Project(context.Background(), []hyperbatch.ID{1, 2}, editor)
	require.Error(t, err)
	assert.Nil(t, docs, "no partial documents")
	assert.True(t, hyperbatch.IsStoreUnavailableErr(err))
}

func TestProject_VisibilityFailure(t *testing.T) {
	vis, store := fixture()
	vis.err = hyperbatch.MapStoreError("allowed_containers", errors.New("pq: function allowed_containers(bigint, text) does not exist (SQLSTATE 42883)"))
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis))

	_, err := p.Project(context.Background(), []hyperbatch.ID{1}, editor)
	require.Error(t, err)
	assert.True(t, hyperbatch.IsMissingFunctionErr(err))
}

func TestProject_Canceled(t *testing.T) {
	vis, store := fixture()
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	docs, err := p.Project(ctx, []hyperbatch.ID{1}, editor)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, docs)
	assert.Zero(t, store.count("BulkFetch"))
}

func TestProject_GuardFailureOmitsKey(t *testing.T) {
	reg, err := schema.NewBuilder("WorkPackage", hyperbatch.EntityAttributes,
		schema.WithViewPermission("view_work_packages"),
	).
		DeclareProperty("id", schema.Column("id")).
		// subject is a string, so the guard fails to evaluate.
		DeclareProperty("broken", schema.Column("subject"), schema.RenderIf(schema.AttrTrue("subject"))).
		DeclareProperty("subject", schema.Column("subject")).
		Build()
	require.NoError(t, err)

	vis, store := fixture()
	p := hyperbatch.NewProjector(reg, store.stores(vis), hyperbatch.WithLogger(quietLogger()))

	docs, err := p.Project(context.Background(), []hyperbatch.ID{1}, editor)
	require.NoError(t, err)
	assert.Equal(t, []string{"_type", "id", "subject", "_links"}, docs[1].Keys())
}

func TestProject_Concurrent(t *testing.T) {
	vis, store := fixture()
	p := hyperbatch.NewProjector(testRegistry(t), store.stores(vis),
		hyperbatch.WithLogger(quietLogger()),
		hyperbatch.WithConcurrency(4),
		hyperbatch.WithCache(hyperbatch.NewCache()),
	)

	want, err := p.Project(context.Background(), []hyperbatch.ID{1, 2, 5}, editor)
	require.NoError(t, err)

	errs := make(chan error, 8)
	for range 8 {
		go func() {
			docs, err := p.Project(context.Background(), []hyperbatch.ID{1, 2, 5}, editor)
			if err == nil {
				for id, doc := range docs {
					a, _ := json.Marshal(doc)
					b, _ := json.Marshal(want[id])
					if string(a) != string(b) {
						err = errors.New("document mismatch for " + id.String())
					}
				}
			}
			errs <- err
		}()
	}
	for range 8 {
		assert.NoError(t, <-errs)
	}
}
