package sqldsl

import (
	"fmt"
	"strings"
)

// Expr is the interface that all SQL expression types implement.
type Expr interface {
	SQL() string
}

// Arg is a positional query argument ($1, $2, ...).
type Arg int

// SQL renders the placeholder.
func (a Arg) SQL() string {
	return fmt.Sprintf("$%d", int(a))
}

// Col represents a table column reference (e.g., wp.project_id).
type Col struct {
	Table  string
	Column string
}

// SQL renders the column reference.
func (c Col) SQL() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// Lit represents a literal string value (auto-quoted with single quotes).
type Lit string

// SQL renders the literal with single quotes.
func (l Lit) SQL() string {
	escaped := strings.ReplaceAll(string(l), "'", "''")
	return "'" + escaped + "'"
}

// Raw is an escape hatch for arbitrary SQL expressions.
type Raw string

// SQL renders the raw SQL as-is.
func (r Raw) SQL() string {
	return string(r)
}

// Int represents an integer literal.
type Int int

// SQL renders the integer.
func (i Int) SQL() string {
	return fmt.Sprintf("%d", i)
}

// Func represents a SQL function call.
type Func struct {
	Name string
	Args []Expr
}

// SQL renders the function call.
func (f Func) SQL() string {
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		args[i] = arg.SQL()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

// Coalesce renders COALESCE(exprs...).
func Coalesce(exprs ...Expr) Func {
	return Func{Name: "COALESCE", Args: exprs}
}

// Sum renders SUM(expr).
func Sum(expr Expr) Func {
	return Func{Name: "SUM", Args: []Expr{expr}}
}

// Alias wraps an expression with an alias (expr AS alias).
type Alias struct {
	Expr Expr
	Name string
}

// SQL renders the aliased expression.
func (a Alias) SQL() string {
	return a.Expr.SQL() + " AS " + a.Name
}

// Concat represents SQL string concatenation (||).
type Concat struct {
	Parts []Expr
}

// SQL renders the concatenation.
func (c Concat) SQL() string {
	if len(c.Parts) == 0 {
		return "''"
	}
	parts := make([]string, len(c.Parts))
	for i, p := range c.Parts {
		parts[i] = p.SQL()
	}
	return strings.Join(parts, " || ")
}

// SelectAs creates an aliased column expression (expr AS alias).
func SelectAs(expr Expr, alias string) Alias {
	return Alias{Expr: expr, Name: alias}
}
