package sqldsl

import (
	"fmt"
	"strings"
)

// SQLer is an interface for types that can render a complete statement.
type SQLer interface {
	SQL() string
}

// Optf returns formatted string if condition is true, empty string otherwise.
// Useful for optional SQL clauses.
func Optf(cond bool, format string, args ...any) string {
	if !cond {
		return ""
	}
	return fmt.Sprintf(format, args...)
}

// IndentLines adds the given indent prefix to each line of input.
func IndentLines(input, indent string) string {
	if input == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(input), "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// JoinClause represents a SQL JOIN clause.
type JoinClause struct {
	Type  string // "INNER", "LEFT"
	Table TableExpr
	On    Expr
}

// SQL renders the JOIN clause.
func (j JoinClause) SQL() string {
	keyword := "JOIN"
	if j.Type != "" {
		keyword = j.Type + " JOIN"
	}
	if j.On == nil {
		return keyword + " " + j.Table.TableSQL()
	}
	return keyword + " " + j.Table.TableSQL() + " ON " + j.On.SQL()
}

// OrderExpr is a single ORDER BY term.
type OrderExpr struct {
	Expr Expr
	Desc bool
}

// SQL renders the ordering term.
func (o OrderExpr) SQL() string {
	if o.Desc {
		return o.Expr.SQL() + " DESC"
	}
	return o.Expr.SQL() + " ASC"
}

// Asc orders by expr ascending.
func Asc(expr Expr) OrderExpr { return OrderExpr{Expr: expr} }

// Desc orders by expr descending.
func Desc(expr Expr) OrderExpr { return OrderExpr{Expr: expr, Desc: true} }

// SelectStmt represents a SELECT query.
type SelectStmt struct {
	Distinct    bool
	ColumnExprs []Expr
	FromExpr    TableExpr
	Joins       []JoinClause
	Where       Expr
	GroupBy     []Expr
	OrderBy     []OrderExpr
	Limit       int
}

// SQL renders the SELECT statement, one clause per line.
func (s SelectStmt) SQL() string {
	clauses := []string{
		"SELECT " + Optf(s.Distinct, "DISTINCT ") + s.columnsSQL(),
		s.fromSQL(),
		s.joinsSQL(),
		s.whereSQL(),
		s.groupBySQL(),
		s.orderBySQL(),
		s.limitSQL(),
	}
	out := clauses[:0]
	for _, c := range clauses {
		if c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, "\n")
}

func (s SelectStmt) columnsSQL() string {
	if len(s.ColumnExprs) == 0 {
		return "1"
	}
	parts := make([]string, len(s.ColumnExprs))
	for i, e := range s.ColumnExprs {
		parts[i] = e.SQL()
	}
	return strings.Join(parts, ", ")
}

func (s SelectStmt) fromSQL() string {
	if s.FromExpr == nil {
		return ""
	}
	return "FROM " + s.FromExpr.TableSQL()
}

func (s SelectStmt) joinsSQL() string {
	if len(s.Joins) == 0 {
		return ""
	}
	parts := make([]string, len(s.Joins))
	for i, j := range s.Joins {
		parts[i] = j.SQL()
	}
	return strings.Join(parts, "\n")
}

func (s SelectStmt) whereSQL() string {
	if s.Where == nil {
		return ""
	}
	return "WHERE " + s.Where.SQL()
}

func (s SelectStmt) groupBySQL() string {
	if len(s.GroupBy) == 0 {
		return ""
	}
	parts := make([]string, len(s.GroupBy))
	for i, e := range s.GroupBy {
		parts[i] = e.SQL()
	}
	return "GROUP BY " + strings.Join(parts, ", ")
}

func (s SelectStmt) orderBySQL() string {
	if len(s.OrderBy) == 0 {
		return ""
	}
	parts := make([]string, len(s.OrderBy))
	for i, o := range s.OrderBy {
		parts[i] = o.SQL()
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

func (s SelectStmt) limitSQL() string {
	if s.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf("LIMIT %d", s.Limit)
}

// Subquery wraps a statement as a derived table: (stmt) AS alias.
type Subquery struct {
	Query SQLer
	Alias string
}

// TableSQL implements TableExpr.
func (s Subquery) TableSQL() string {
	return "(\n" + IndentLines(s.Query.SQL(), "    ") + "\n) AS " + s.Alias
}

// TableAlias implements TableExpr.
func (s Subquery) TableAlias() string {
	return s.Alias
}
