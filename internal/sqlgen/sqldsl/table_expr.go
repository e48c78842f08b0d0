package sqldsl

// TableExpr is the interface for table expressions in FROM and JOIN clauses.
type TableExpr interface {
	// TableSQL returns the SQL for use in FROM/JOIN clauses.
	TableSQL() string
	// TableAlias returns the alias if any (empty string if none).
	TableAlias() string
}

// TableRef wraps a table name for use as a TableExpr.
type TableRef struct {
	Name  string
	Alias string
}

// TableSQL implements TableExpr.
func (t TableRef) TableSQL() string {
	if t.Alias != "" {
		return t.Name + " AS " + t.Alias
	}
	return t.Name
}

// TableAlias implements TableExpr.
func (t TableRef) TableAlias() string {
	return t.Alias
}

// TableAs creates a table reference with an alias.
func TableAs(name, alias string) TableRef {
	return TableRef{Name: name, Alias: alias}
}

// FunctionCallExpr is a set-returning function used as a table expression,
// e.g. allowed_containers($1, $2) AS ac.
type FunctionCallExpr struct {
	Name  string
	Args  []Expr
	Alias string
}

// TableSQL implements TableExpr.
func (f FunctionCallExpr) TableSQL() string {
	result := Func{Name: f.Name, Args: f.Args}.SQL()
	if f.Alias != "" {
		result += " AS " + f.Alias
	}
	return result
}

// TableAlias implements TableExpr.
func (f FunctionCallExpr) TableAlias() string {
	return f.Alias
}
