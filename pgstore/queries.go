package pgstore

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pthm/hyperbatch"
	dsl "github.com/pthm/hyperbatch/internal/sqlgen/sqldsl"
)

// ErrUnknownJoinTarget is returned when an association names a join target
// the store has no table for.
var ErrUnknownJoinTarget = errors.New("pgstore: unknown join target")

// kindColumns are the relation kind counters besides hierarchy.
var kindColumns = []string{"relates", "duplicates", "blocks", "follows", "includes", "requires"}

func col(table, column string) dsl.Col {
	return dsl.Col{Table: table, Column: column}
}

// edgesQuery selects pure hierarchy rows touching the batch. For Up the
// batch is on the descendant side and the peer is the ancestor; for Down
// it is the other way around. $1 is the ID array, $2 the maximum distance
// when one is set. Rows come farthest first.
func edgesQuery(q hyperbatch.EdgeQuery) string {
	own, peer := "to_id", "from_id"
	if q.Direction == hyperbatch.Down {
		own, peer = "from_id", "to_id"
	}

	columns := []dsl.Expr{col("r", "from_id"), col("r", "to_id"), col("r", "hierarchy")}
	conds := []dsl.Expr{
		dsl.AnyArg{Expr: col("r", own), Arg: 1},
		dsl.Gt{Left: col("r", "hierarchy"), Right: dsl.Int(0)},
	}
	if q.MaxDistance > 0 {
		conds = append(conds, dsl.Lte{Left: col("r", "hierarchy"), Right: dsl.Arg(2)})
	}
	for _, k := range kindColumns {
		columns = append(columns, col("r", k))
		conds = append(conds, dsl.Eq{Left: col("r", k), Right: dsl.Int(0)})
	}
	columns = append(columns, col("peer", "id"), col("peer", "project_id"), col("peer", "subject"))

	return dsl.SelectStmt{
		ColumnExprs: columns,
		FromExpr:    dsl.TableAs("relations", "r"),
		Joins: []dsl.JoinClause{{
			Type:  "INNER",
			Table: dsl.TableAs("work_packages", "peer"),
			On:    dsl.Eq{Left: col("peer", "id"), Right: col("r", peer)},
		}},
		Where:   dsl.And(conds...),
		OrderBy: []dsl.OrderExpr{dsl.Desc(col("r", "hierarchy")), dsl.Asc(col("peer", "id"))},
	}.SQL()
}

// checksumExpr hashes every column the cacheable part of a document reads,
// including the names of associated rows, so renaming a status or a user
// invalidates the documents that show it.
func checksumExpr() dsl.Expr {
	parts := []dsl.Expr{
		dsl.Lit("|"),
		col("wp", "lock_version"),
		col("wp", "updated_at"),
		col("p", "identifier"),
		col("p", "name"),
		col("t", "name"),
		col("t", "is_milestone"),
		col("st", "name"),
		col("pr", "name"),
		col("c", "name"),
		col("v", "name"),
	}
	for _, u := range []string{"au", "asg", "resp"} {
		parts = append(parts, col(u, "firstname"), col(u, "lastname"))
	}
	return dsl.Func{Name: "md5", Args: []dsl.Expr{dsl.Func{Name: "concat_ws", Args: parts}}}
}

// entitiesQuery loads work packages with their project identifier,
// milestone flag, summed spent time and checksum. $1 is the ID array.
func entitiesQuery() string {
	spent := dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{
			col("te", "work_package_id"),
			dsl.SelectAs(dsl.Sum(col("te", "hours")), "hours"),
		},
		FromExpr: dsl.TableAs("time_entries", "te"),
		Where:    dsl.AnyArg{Expr: col("te", "work_package_id"), Arg: 1},
		GroupBy:  []dsl.Expr{col("te", "work_package_id")},
	}

	optional := func(c string) dsl.Expr { return dsl.Coalesce(col("wp", c), dsl.Int(0)) }
	left := func(table, alias, fk string) dsl.JoinClause {
		return dsl.JoinClause{
			Type:  "LEFT",
			Table: dsl.TableAs(table, alias),
			On:    dsl.Eq{Left: col(alias, "id"), Right: col("wp", fk)},
		}
	}

	main := dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{
			col("wp", "id"),
			col("wp", "project_id"),
			col("p", "identifier"),
			col("wp", "type_id"),
			col("t", "is_milestone"),
			col("wp", "status_id"),
			col("wp", "priority_id"),
			optional("category_id"),
			optional("author_id"),
			optional("assigned_to_id"),
			optional("responsible_id"),
			optional("fixed_version_id"),
			col("wp", "subject"),
			dsl.Coalesce(col("wp", "description"), dsl.Lit("")),
			col("wp", "start_date"),
			col("wp", "due_date"),
			col("wp", "estimated_hours"),
			col("wp", "derived_estimated_hours"),
			dsl.Coalesce(col("spent", "hours"), dsl.Int(0)),
			col("wp", "done_ratio"),
			col("wp", "lock_version"),
			col("wp", "created_at"),
			col("wp", "updated_at"),
			dsl.SelectAs(checksumExpr(), "checksum"),
		},
		FromExpr: dsl.TableAs("work_packages", "wp"),
		Joins: []dsl.JoinClause{
			{Type: "INNER", Table: dsl.TableAs("projects", "p"), On: dsl.Eq{Left: col("p", "id"), Right: col("wp", "project_id")}},
			{Type: "INNER", Table: dsl.TableAs("types", "t"), On: dsl.Eq{Left: col("t", "id"), Right: col("wp", "type_id")}},
			left("statuses", "st", "status_id"),
			left("priorities", "pr", "priority_id"),
			left("categories", "c", "category_id"),
			left("versions", "v", "fixed_version_id"),
			left("users", "au", "author_id"),
			left("users", "asg", "assigned_to_id"),
			left("users", "resp", "responsible_id"),
			{Type: "LEFT", Table: dsl.TableRef{Name: "spent"}, On: dsl.Eq{Left: col("spent", "work_package_id"), Right: col("wp", "id")}},
		},
		Where: dsl.AnyArg{Expr: col("wp", "id"), Arg: 1},
	}

	return dsl.WithCTE{
		CTEs:  []dsl.CTEDef{{Name: "spent", Query: spent}},
		Query: main,
	}.SQL()
}

// targetTable describes how one join target resolves to {id, name, path}.
type targetTable struct {
	table string
	name  dsl.Expr
	path  dsl.Expr
}

func named(table, path string) targetTable {
	return targetTable{table: table, name: col("t", "name"), path: dsl.Lit(path)}
}

var isGroup = dsl.Eq{Left: col("t", "type"), Right: dsl.Lit("Group")}

// targetTables maps join target names to their tables. Principals are users
// or groups; groups keep their name in lastname.
var targetTables = map[string]targetTable{
	"projects":   named("projects", "projects"),
	"types":      named("types", "types"),
	"statuses":   named("statuses", "statuses"),
	"priorities": named("priorities", "priorities"),
	"categories": named("categories", "categories"),
	"versions":   named("versions", "versions"),
	"principals": {
		table: "users",
		name: dsl.CaseExpr{
			Whens: []dsl.CaseWhen{{Cond: isGroup, Result: col("t", "lastname")}},
			Else:  dsl.Func{Name: "btrim", Args: []dsl.Expr{dsl.Concat{Parts: []dsl.Expr{col("t", "firstname"), dsl.Lit(" "), col("t", "lastname")}}}},
		},
		path: dsl.CaseExpr{
			Whens: []dsl.CaseWhen{{Cond: isGroup, Result: dsl.Lit("groups")}},
			Else:  dsl.Lit("users"),
		},
	},
}

// JoinTargets returns the join targets the store can resolve, sorted.
func JoinTargets() []string {
	out := make([]string, 0, len(targetTables))
	for k := range targetTables {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// targetsQuery resolves ids of one join target. $1 is the ID array.
func targetsQuery(joinTarget string) (string, error) {
	tt, ok := targetTables[joinTarget]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownJoinTarget, joinTarget)
	}
	return dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{
			col("t", "id"),
			dsl.SelectAs(tt.name, "name"),
			dsl.SelectAs(tt.path, "path"),
		},
		FromExpr: dsl.TableAs(tt.table, "t"),
		Where:    dsl.AnyArg{Expr: col("t", "id"), Arg: 1},
	}.SQL(), nil
}

// watchersQuery selects the IDs among $2 that user $1 watches.
func watchersQuery() string {
	return dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{col("w", "watchable_id")},
		FromExpr:    dsl.TableAs("watchers", "w"),
		Where: dsl.And(
			dsl.Eq{Left: col("w", "user_id"), Right: dsl.Arg(1)},
			dsl.AnyArg{Expr: col("w", "watchable_id"), Arg: 2},
		),
	}.SQL()
}

// customActionsQuery selects, for each work package in $1, the custom
// actions whose conditions it meets, in position order.
func customActionsQuery() string {
	matches := func(conditions, column string) dsl.Expr {
		return dsl.Or(
			dsl.Eq{Left: dsl.Func{Name: "cardinality", Args: []dsl.Expr{col("ca", conditions)}}, Right: dsl.Int(0)},
			dsl.Eq{Left: col("wp", column), Right: dsl.Func{Name: "ANY", Args: []dsl.Expr{col("ca", conditions)}}},
		)
	}
	return dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{col("wp", "id"), col("ca", "id"), col("ca", "name"), col("ca", "position")},
		FromExpr:    dsl.TableAs("work_packages", "wp"),
		Joins:       []dsl.JoinClause{{Type: "CROSS", Table: dsl.TableAs("custom_actions", "ca")}},
		Where: dsl.And(
			dsl.AnyArg{Expr: col("wp", "id"), Arg: 1},
			matches("status_ids", "status_id"),
			matches("type_ids", "type_id"),
			matches("project_ids", "project_id"),
		),
		OrderBy: []dsl.OrderExpr{dsl.Asc(col("wp", "id")), dsl.Asc(col("ca", "position")), dsl.Asc(col("ca", "id"))},
	}.SQL()
}
