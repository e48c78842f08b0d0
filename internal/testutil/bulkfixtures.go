package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
)

// copyFrom loads rows with the COPY protocol through the pgx connection
// underneath a database/sql handle.
func copyFrom(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("not a pgx connection (got %T)", driverConn)
		}
		_, err := c.Conn().CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		return err
	})
}

// BulkChildren creates n work packages under parent with COPY and returns
// their IDs in ascending order. Only direct closure rows are written, so
// parent must be a root.
func (f *Fixtures) BulkChildren(parent int64, tmpl WorkPackage, n int) []int64 {
	f.tb.Helper()
	if n == 0 {
		return nil
	}

	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{tmpl.Project, tmpl.Type, tmpl.Status, tmpl.Priority, fmt.Sprintf("%s %d", tmpl.Subject, i)}
	}
	err := copyFrom(f.ctx, f.db, "work_packages",
		[]string{"project_id", "type_id", "status_id", "priority_id", "subject"}, rows)
	require.NoError(f.tb, err, "COPY work_packages")

	ids := f.latestIDs(n)

	edges := make([][]any, n)
	for i, id := range ids {
		edges[i] = []any{parent, id, 1}
	}
	err = copyFrom(f.ctx, f.db, "relations", []string{"from_id", "to_id", "hierarchy"}, edges)
	require.NoError(f.tb, err, "COPY relations")
	return ids
}

// latestIDs returns the n most recently inserted work package IDs, ascending.
func (f *Fixtures) latestIDs(n int) []int64 {
	f.tb.Helper()
	rows, err := f.db.QueryContext(f.ctx, "SELECT id FROM work_packages ORDER BY id DESC LIMIT $1", n)
	require.NoError(f.tb, err)
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0, n)
	for rows.Next() {
		var id int64
		require.NoError(f.tb, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(f.tb, rows.Err())
	slices.Reverse(ids)
	return ids
}
