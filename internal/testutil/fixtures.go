package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// Fixtures inserts domain rows for integration tests. Every helper fails
// the test on error and returns the new row's ID.
type Fixtures struct {
	tb  testing.TB
	db  *sql.DB
	ctx context.Context
}

// NewFixtures returns fixtures writing to db.
func NewFixtures(tb testing.TB, db *sql.DB) *Fixtures {
	return &Fixtures{tb: tb, db: db, ctx: context.Background()}
}

func (f *Fixtures) insert(query string, args ...any) int64 {
	f.tb.Helper()
	var id int64
	err := f.db.QueryRowContext(f.ctx, query+" RETURNING id", args...).Scan(&id)
	require.NoError(f.tb, err, query)
	return id
}

func (f *Fixtures) exec(query string, args ...any) {
	f.tb.Helper()
	_, err := f.db.ExecContext(f.ctx, query, args...)
	require.NoError(f.tb, err, query)
}

// Project creates an active project.
func (f *Fixtures) Project(identifier string, public bool) int64 {
	f.tb.Helper()
	return f.insert(`INSERT INTO projects (identifier, name, public) VALUES ($1, $2, $3)`,
		identifier, "Project "+identifier, public)
}

// ArchiveProject marks a project inactive.
func (f *Fixtures) ArchiveProject(id int64) {
	f.tb.Helper()
	f.exec(`UPDATE projects SET active = FALSE WHERE id = $1`, id)
}

// User creates a user.
func (f *Fixtures) User(firstname, lastname string, admin bool) int64 {
	f.tb.Helper()
	return f.insert(`INSERT INTO users (type, login, firstname, lastname, admin) VALUES ('User', $1, $2, $3, $4)`,
		firstname+"."+lastname, firstname, lastname, admin)
}

// Group creates a group; its name is stored in lastname.
func (f *Fixtures) Group(name string) int64 {
	f.tb.Helper()
	return f.insert(`INSERT INTO users (type, lastname) VALUES ('Group', $1)`, name)
}

// AddToGroup makes user a member of group.
func (f *Fixtures) AddToGroup(group, user int64) {
	f.tb.Helper()
	f.exec(`INSERT INTO group_users (group_id, user_id) VALUES ($1, $2)`, group, user)
}

// Grant gives principal permissions in project.
func (f *Fixtures) Grant(project, principal int64, permissions ...string) {
	f.tb.Helper()
	for _, p := range permissions {
		f.exec(`INSERT INTO member_permissions (project_id, user_id, permission) VALUES ($1, $2, $3)`,
			project, principal, p)
	}
}

// GrantPublic gives everyone permissions in public projects.
func (f *Fixtures) GrantPublic(permissions ...string) {
	f.tb.Helper()
	for _, p := range permissions {
		f.exec(`INSERT INTO public_permissions (permission) VALUES ($1) ON CONFLICT DO NOTHING`, p)
	}
}

// Type creates a work package type.
func (f *Fixtures) Type(name string, milestone bool) int64 {
	f.tb.Helper()
	return f.insert(`INSERT INTO types (name, is_milestone) VALUES ($1, $2)`, name, milestone)
}

// Status creates a status.
func (f *Fixtures) Status(name string) int64 {
	f.tb.Helper()
	return f.insert(`INSERT INTO statuses (name) VALUES ($1)`, name)
}

// Priority creates a priority.
func (f *Fixtures) Priority(name string) int64 {
	f.tb.Helper()
	return f.insert(`INSERT INTO priorities (name) VALUES ($1)`, name)
}

// Version creates a version in project.
func (f *Fixtures) Version(project int64, name string) int64 {
	f.tb.Helper()
	return f.insert(`INSERT INTO versions (project_id, name) VALUES ($1, $2)`, project, name)
}

// Category creates a category in project.
func (f *Fixtures) Category(project int64, name string) int64 {
	f.tb.Helper()
	return f.insert(`INSERT INTO categories (project_id, name) VALUES ($1, $2)`, project, name)
}

// WorkPackage describes a work package to insert. Zero IDs are stored as NULL.
type WorkPackage struct {
	Project, Type, Status, Priority int64
	Category, Author, Assignee      int64
	Responsible, Version            int64
	Subject, Description            string
	StartDate, DueDate              *time.Time
	EstimatedHours                  *float64
	DoneRatio                       *int
}

func nullable(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// WorkPackage inserts wp.
func (f *Fixtures) WorkPackage(wp WorkPackage) int64 {
	f.tb.Helper()
	var description any
	if wp.Description != "" {
		description = wp.Description
	}
	return f.insert(`
		INSERT INTO work_packages (
			project_id, type_id, status_id, priority_id,
			category_id, author_id, assigned_to_id, responsible_id, fixed_version_id,
			subject, description, start_date, due_date, estimated_hours, done_ratio
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		wp.Project, wp.Type, wp.Status, wp.Priority,
		nullable(wp.Category), nullable(wp.Author), nullable(wp.Assignee), nullable(wp.Responsible), nullable(wp.Version),
		wp.Subject, description, wp.StartDate, wp.DueDate, wp.EstimatedHours, wp.DoneRatio,
	)
}

// SetParent places child under parent by writing the closure rows to the
// parent and every ancestor of the parent. Build trees top-down: child must
// not have descendants yet.
func (f *Fixtures) SetParent(child, parent int64) {
	f.tb.Helper()
	f.exec(`
		INSERT INTO relations (from_id, to_id, hierarchy)
		SELECT r.from_id, $2::BIGINT, r.hierarchy + 1
		FROM relations r
		WHERE r.to_id = $1::BIGINT AND r.hierarchy > 0
		  AND r.relates = 0 AND r.duplicates = 0 AND r.blocks = 0
		  AND r.follows = 0 AND r.includes = 0 AND r.requires = 0
		UNION ALL
		SELECT $1::BIGINT, $2::BIGINT, 1`, parent, child)
}

// Relate inserts a non-hierarchical relation of the given kind column.
func (f *Fixtures) Relate(from, to int64, kind string) {
	f.tb.Helper()
	switch kind {
	case "relates", "duplicates", "blocks", "follows", "includes", "requires":
	default:
		f.tb.Fatalf("unknown relation kind %q", kind)
	}
	f.exec(fmt.Sprintf(`INSERT INTO relations (from_id, to_id, %s) VALUES ($1, $2, 1)`, kind), from, to)
}

// Watch makes user watch wp.
func (f *Fixtures) Watch(wp, user int64) {
	f.tb.Helper()
	f.exec(`INSERT INTO watchers (watchable_id, user_id) VALUES ($1, $2)`, wp, user)
}

// CustomAction creates a custom action restricted to the given statuses,
// types and projects; nil means unrestricted.
func (f *Fixtures) CustomAction(name string, position int, statuses, types, projects []int64) int64 {
	f.tb.Helper()
	arr := func(ids []int64) any {
		if ids == nil {
			ids = []int64{}
		}
		return pq.Array(ids)
	}
	return f.insert(`INSERT INTO custom_actions (name, position, status_ids, type_ids, project_ids) VALUES ($1, $2, $3, $4, $5)`,
		name, position, arr(statuses), arr(types), arr(projects))
}

// LogTime books hours on wp.
func (f *Fixtures) LogTime(wp, user int64, hours float64) {
	f.tb.Helper()
	f.insert(`INSERT INTO time_entries (work_package_id, user_id, hours) VALUES ($1, $2, $3)`, wp, user, hours)
}

// Touch bumps lock_version and updated_at, as an application update would.
func (f *Fixtures) Touch(wp int64) {
	f.tb.Helper()
	f.exec(`UPDATE work_packages SET lock_version = lock_version + 1, updated_at = now() WHERE id = $1`, wp)
}
