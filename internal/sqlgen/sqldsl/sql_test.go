package sqldsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpressions_SQL(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"arg", Arg(2), "$2"},
		{"column", Col{Table: "wp", Column: "id"}, "wp.id"},
		{"bare column", Col{Column: "id"}, "id"},
		{"literal escapes quotes", Lit("O'Brien"), "'O''Brien'"},
		{"int", Int(0), "0"},
		{"coalesce", Coalesce(Col{Table: "s", Column: "hours"}, Int(0)), "COALESCE(s.hours, 0)"},
		{"alias", SelectAs(Col{Table: "t", Column: "name"}, "title"), "t.name AS title"},
		{"concat", Concat{Parts: []Expr{Col{Column: "a"}, Lit(" "), Col{Column: "b"}}}, "a || ' ' || b"},
		{"empty concat", Concat{}, "''"},
		{"lte", Lte{Left: Col{Table: "r", Column: "hierarchy"}, Right: Arg(2)}, "r.hierarchy <= $2"},
		{"any", AnyArg{Expr: Col{Table: "r", Column: "from_id"}, Arg: Arg(1)}, "r.from_id = ANY($1)"},
		{"and drops nil", And(Eq{Left: Col{Column: "a"}, Right: Int(1)}, nil), "a = 1"},
		{"and many", And(Gt{Left: Col{Column: "a"}, Right: Int(0)}, Eq{Left: Col{Column: "b"}, Right: Int(0)}), "(a > 0 AND b = 0)"},
		{"empty and", And(), "TRUE"},
		{"empty or", Or(), "FALSE"},
		{"or", Or(IsNull{Expr: Col{Column: "a"}}, Eq{Left: Col{Column: "a"}, Right: Arg(1)}), "(a IS NULL OR a = $1)"},
		{
			"case",
			CaseExpr{
				Whens: []CaseWhen{{Cond: Eq{Left: Col{Column: "type"}, Right: Lit("Group")}, Result: Lit("groups")}},
				Else:  Lit("users"),
			},
			"CASE WHEN type = 'Group' THEN 'groups' ELSE 'users' END",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.SQL())
		})
	}
}

func TestSelectStmt_SQL(t *testing.T) {
	stmt := SelectStmt{
		ColumnExprs: []Expr{Col{Table: "r", Column: "from_id"}, Col{Table: "r", Column: "hierarchy"}},
		FromExpr:    TableAs("relations", "r"),
		Joins: []JoinClause{{
			Type:  "INNER",
			Table: TableAs("work_packages", "peer"),
			On:    Eq{Left: Col{Table: "peer", Column: "id"}, Right: Col{Table: "r", Column: "from_id"}},
		}},
		Where:   AnyArg{Expr: Col{Table: "r", Column: "to_id"}, Arg: Arg(1)},
		OrderBy: []OrderExpr{Desc(Col{Table: "r", Column: "hierarchy"}), Asc(Col{Table: "peer", Column: "id"})},
		Limit:   10,
	}

	want := "SELECT r.from_id, r.hierarchy\n" +
		"FROM relations AS r\n" +
		"INNER JOIN work_packages AS peer ON peer.id = r.from_id\n" +
		"WHERE r.to_id = ANY($1)\n" +
		"ORDER BY r.hierarchy DESC, peer.id ASC\n" +
		"LIMIT 10"
	assert.Equal(t, want, stmt.SQL())
}

func TestSelectStmt_GroupByAndSubquery(t *testing.T) {
	inner := SelectStmt{
		ColumnExprs: []Expr{Col{Table: "te", Column: "work_package_id"}, SelectAs(Sum(Col{Table: "te", Column: "hours"}), "hours")},
		FromExpr:    TableAs("time_entries", "te"),
		GroupBy:     []Expr{Col{Table: "te", Column: "work_package_id"}},
	}
	outer := SelectStmt{
		ColumnExprs: []Expr{Col{Table: "s", Column: "hours"}},
		FromExpr:    Subquery{Query: inner, Alias: "s"},
	}

	got := outer.SQL()
	assert.Contains(t, got, "FROM (\n    SELECT te.work_package_id, SUM(te.hours) AS hours")
	assert.Contains(t, got, "    GROUP BY te.work_package_id\n) AS s")
}

func TestSelectStmt_Defaults(t *testing.T) {
	assert.Equal(t, "SELECT 1", SelectStmt{}.SQL())
	assert.Equal(t, "SELECT DISTINCT 1\nFROM t", SelectStmt{Distinct: true, FromExpr: TableRef{Name: "t"}}.SQL())
}

func TestFunctionCallExpr(t *testing.T) {
	fn := FunctionCallExpr{Name: "allowed_containers", Args: []Expr{Arg(1), Arg(2)}, Alias: "ac"}
	assert.Equal(t, "allowed_containers($1, $2) AS ac", fn.TableSQL())
	assert.Equal(t, "ac", fn.TableAlias())
}

func TestJoinClause_WithoutOn(t *testing.T) {
	j := JoinClause{Type: "CROSS", Table: TableRef{Name: "settings"}}
	assert.Equal(t, "CROSS JOIN settings", j.SQL())
}
