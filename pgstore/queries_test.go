package pgstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/hyperbatch"
)

func TestEdgesQuery(t *testing.T) {
	t.Run("up is unbounded", func(t *testing.T) {
		q := edgesQuery(hyperbatch.EdgeQuery{Direction: hyperbatch.Up})
		assert.Contains(t, q, "r.to_id = ANY($1)")
		assert.Contains(t, q, "INNER JOIN work_packages AS peer ON peer.id = r.from_id")
		assert.Contains(t, q, "r.hierarchy > 0")
		assert.NotContains(t, q, "$2")
		assert.Contains(t, q, "ORDER BY r.hierarchy DESC, peer.id ASC")
	})

	t.Run("down is bounded", func(t *testing.T) {
		q := edgesQuery(hyperbatch.EdgeQuery{Direction: hyperbatch.Down, MaxDistance: 1})
		assert.Contains(t, q, "r.from_id = ANY($1)")
		assert.Contains(t, q, "INNER JOIN work_packages AS peer ON peer.id = r.to_id")
		assert.Contains(t, q, "r.hierarchy <= $2")
	})

	t.Run("excludes other relation kinds", func(t *testing.T) {
		q := edgesQuery(hyperbatch.EdgeQuery{Direction: hyperbatch.Up})
		for _, k := range kindColumns {
			assert.Contains(t, q, "r."+k+" = 0")
		}
	})
}

func TestEntitiesQuery(t *testing.T) {
	q := entitiesQuery()
	assert.Contains(t, q, "WITH spent AS")
	assert.Contains(t, q, "wp.id = ANY($1)")
	assert.Contains(t, q, "te.work_package_id = ANY($1)")
	assert.Contains(t, q, "LEFT JOIN users AS asg ON asg.id = wp.assigned_to_id")
	assert.Contains(t, q, "md5(concat_ws('|'")
}

func TestTargetsQuery(t *testing.T) {
	for _, target := range JoinTargets() {
		t.Run(target, func(t *testing.T) {
			q, err := targetsQuery(target)
			require.NoError(t, err)
			assert.Contains(t, q, "t.id = ANY($1)")
			assert.Contains(t, q, "AS name")
			assert.Contains(t, q, "AS path")
		})
	}

	t.Run("principals distinguish groups", func(t *testing.T) {
		q, err := targetsQuery("principals")
		require.NoError(t, err)
		assert.Contains(t, q, "FROM users AS t")
		assert.Contains(t, q, "'groups'")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := targetsQuery("widgets")
		require.ErrorIs(t, err, ErrUnknownJoinTarget)
		assert.Contains(t, err.Error(), `"widgets"`)
	})
}

func TestJoinTargets(t *testing.T) {
	assert.Equal(t, []string{
		"categories", "priorities", "principals", "projects", "statuses", "types", "versions",
	}, JoinTargets())
}

func TestWatchersQuery(t *testing.T) {
	q := watchersQuery()
	assert.Contains(t, q, "w.user_id = $1")
	assert.Contains(t, q, "w.watchable_id = ANY($2)")
}

func TestCustomActionsQuery(t *testing.T) {
	q := customActionsQuery()
	assert.Contains(t, q, "CROSS JOIN custom_actions AS ca\n")
	assert.Contains(t, q, "wp.id = ANY($1)")
	assert.Contains(t, q, "(cardinality(ca.status_ids) = 0 OR wp.status_id = ANY(ca.status_ids))")
	assert.Contains(t, q, "(cardinality(ca.project_ids) = 0 OR wp.project_id = ANY(ca.project_ids))")
	assert.Contains(t, q, "ORDER BY wp.id ASC, ca.position ASC, ca.id ASC")
}

func TestHealthQueries(t *testing.T) {
	t.Run("self loops", func(t *testing.T) {
		q := selfLoopsQuery()
		assert.Contains(t, q, "SELECT count(*)\nFROM relations AS r")
		assert.Contains(t, q, "r.from_id = r.to_id")
		assert.Contains(t, q, "r.requires = 0")
	})

	t.Run("multiple parents", func(t *testing.T) {
		q := multiParentQuery()
		assert.Contains(t, q, "count(*) AS parents")
		assert.Contains(t, q, "GROUP BY r.to_id")
		assert.Contains(t, q, ") AS multi\nWHERE multi.parents > 1")
	})

	t.Run("closure gaps", func(t *testing.T) {
		q := closureGapsQuery()
		assert.Contains(t, q, "INNER JOIN relations AS down ON (down.from_id = up.to_id AND down.hierarchy = 1)")
		assert.Contains(t, q, "LEFT JOIN relations AS c ON")
		assert.Contains(t, q, "c.hierarchy = up.hierarchy + 1")
		assert.Contains(t, q, "c.id IS NULL")
	})

	t.Run("count allowed", func(t *testing.T) {
		assert.Equal(t, "SELECT count(*)\nFROM allowed_containers($1, $2) AS ac", countAllowedQuery())
	})
}
