package pgstore

import (
	"context"
	"fmt"

	"github.com/pthm/hyperbatch"
	dsl "github.com/pthm/hyperbatch/internal/sqlgen/sqldsl"
)

// HierarchyHealth counts closure rows the aggregator cannot render
// faithfully.
type HierarchyHealth struct {
	// SelfLoops are hierarchy rows with from_id = to_id.
	SelfLoops int64

	// MultiParent is the number of work packages with more than one
	// distance-1 ancestor.
	MultiParent int64

	// ClosureGaps are (ancestor, parent, child) chains missing the
	// transitive ancestor to child row.
	ClosureGaps int64
}

// Healthy reports whether no anomaly was found.
func (h HierarchyHealth) Healthy() bool {
	return h.SelfLoops == 0 && h.MultiParent == 0 && h.ClosureGaps == 0
}

// hierarchyOnly restricts alias to pure hierarchy rows.
func hierarchyOnly(alias string) []dsl.Expr {
	conds := []dsl.Expr{dsl.Gt{Left: col(alias, "hierarchy"), Right: dsl.Int(0)}}
	for _, k := range kindColumns {
		conds = append(conds, dsl.Eq{Left: col(alias, k), Right: dsl.Int(0)})
	}
	return conds
}

var countAll = dsl.Raw("count(*)")

func selfLoopsQuery() string {
	return dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{countAll},
		FromExpr:    dsl.TableAs("relations", "r"),
		Where: dsl.And(append(hierarchyOnly("r"),
			dsl.Eq{Left: col("r", "from_id"), Right: col("r", "to_id")})...),
	}.SQL()
}

func multiParentQuery() string {
	parents := dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{col("r", "to_id"), dsl.SelectAs(countAll, "parents")},
		FromExpr:    dsl.TableAs("relations", "r"),
		Where: dsl.And(append(hierarchyOnly("r"),
			dsl.Eq{Left: col("r", "hierarchy"), Right: dsl.Int(1)})...),
		GroupBy: []dsl.Expr{col("r", "to_id")},
	}
	return dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{countAll},
		FromExpr:    dsl.Subquery{Query: parents, Alias: "multi"},
		Where:       dsl.Gt{Left: col("multi", "parents"), Right: dsl.Int(1)},
	}.SQL()
}

// closureGapsQuery anti-joins every ancestor row extended by one direct
// child row against the transitive row it implies.
func closureGapsQuery() string {
	conds := append(hierarchyOnly("up"), hierarchyOnly("down")...)
	conds = append(conds, dsl.IsNull{Expr: col("c", "id")})
	return dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{countAll},
		FromExpr:    dsl.TableAs("relations", "up"),
		Joins: []dsl.JoinClause{
			{
				Type:  "INNER",
				Table: dsl.TableAs("relations", "down"),
				On: dsl.And(
					dsl.Eq{Left: col("down", "from_id"), Right: col("up", "to_id")},
					dsl.Eq{Left: col("down", "hierarchy"), Right: dsl.Int(1)},
				),
			},
			{
				Type:  "LEFT",
				Table: dsl.TableAs("relations", "c"),
				On: dsl.And(
					dsl.Eq{Left: col("c", "from_id"), Right: col("up", "from_id")},
					dsl.Eq{Left: col("c", "to_id"), Right: col("down", "to_id")},
					dsl.Eq{Left: col("c", "hierarchy"), Right: dsl.Raw("up.hierarchy + 1")},
				),
			},
		},
		Where: dsl.And(conds...),
	}.SQL()
}

// CheckHierarchy counts hierarchy anomalies in the relations table.
func CheckHierarchy(ctx context.Context, q hyperbatch.Querier) (*HierarchyHealth, error) {
	h := &HierarchyHealth{}
	for _, c := range []struct {
		name  string
		query string
		dst   *int64
	}{
		{"self loops", selfLoopsQuery(), &h.SelfLoops},
		{"multiple parents", multiParentQuery(), &h.MultiParent},
		{"closure gaps", closureGapsQuery(), &h.ClosureGaps},
	} {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, hyperbatch.MapStoreError(fmt.Sprintf("counting %s", c.name), err)
		}
	}
	return h, nil
}

func countAllowedQuery() string {
	return dsl.SelectStmt{
		ColumnExprs: []dsl.Expr{countAll},
		FromExpr: dsl.FunctionCallExpr{
			Name:  "allowed_containers",
			Args:  []dsl.Expr{dsl.Arg(1), dsl.Arg(2)},
			Alias: "ac",
		},
	}.SQL()
}

// CountAllowed returns how many containers viewer holds permission on,
// calling the visibility function directly.
func CountAllowed(ctx context.Context, q hyperbatch.Querier, viewer hyperbatch.ID, permission string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, countAllowedQuery(), int64(viewer), permission).Scan(&n); err != nil {
		return 0, hyperbatch.MapStoreError("counting allowed containers", err)
	}
	return n, nil
}
