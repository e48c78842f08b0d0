package workpackage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/hyperbatch/pgstore"
	"github.com/pthm/hyperbatch/schema"
	"github.com/pthm/hyperbatch/workpackage"
)

func TestNewRegistry(t *testing.T) {
	reg, err := workpackage.NewRegistry()
	require.NoError(t, err)

	assert.Equal(t, workpackage.Kind, reg.Kind())
	assert.Equal(t, workpackage.PermView, reg.ViewPermission())
	assert.True(t, reg.HasAdminOnly())

	assert.Equal(t, []string{
		"add_work_package_watchers", "add_work_packages", "delete_work_packages", "edit_work_packages",
		"export_work_packages", "log_time", "view_time_entries", "view_work_packages",
	}, reg.Permissions(schema.Role{}))

	assert.Equal(t, []string{workpackage.SettingFeedsEnabled, workpackage.SettingDoneRatio}, reg.CacheSettings())
	assert.Equal(t,
		[]schema.ActionList{{Name: workpackage.ListCustomActions, Permission: workpackage.PermEdit}},
		reg.ActionLists())
}

func TestNewRegistry_JoinTargetsResolvable(t *testing.T) {
	reg, err := workpackage.NewRegistry()
	require.NoError(t, err)
	assert.Subset(t, pgstore.JoinTargets(), reg.JoinTargets())
	assert.Equal(t, pgstore.CustomActionsList, workpackage.ListCustomActions)
}

func TestNewRegistry_APIBase(t *testing.T) {
	reg, err := workpackage.NewRegistry(workpackage.WithAPIBase("/api/v4"))
	require.NoError(t, err)

	for _, l := range reg.ActionLinks(schema.Role{Admin: true}) {
		if l.Name != "self" {
			continue
		}
		href, err := l.Href.Render(schema.Env{View: view{"id": 5}})
		require.NoError(t, err)
		assert.Equal(t, "/api/v4/work_packages/5", href)
		return
	}
	t.Fatal("self link not declared")
}

func TestModel(t *testing.T) {
	model, err := workpackage.Model()
	require.NoError(t, err)

	reg, err := workpackage.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, workpackage.Validate(reg, model))

	project, ok := model.Type(workpackage.ContainerType)
	require.True(t, ok)
	assert.Contains(t, project.Grantors(workpackage.PermEdit), "manager")
}

type view map[string]any

func (v view) Attr(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}
