package sqldsl

import "strings"

// CTEDef is a single named subquery inside a WITH clause.
type CTEDef struct {
	Name    string
	Columns []string // optional
	Query   SQLer
}

// SQL renders the CTE definition as "name [(columns)] AS (query)".
func (c CTEDef) SQL() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	if len(c.Columns) > 0 {
		sb.WriteString("(")
		sb.WriteString(strings.Join(c.Columns, ", "))
		sb.WriteString(")")
	}
	sb.WriteString(" AS (\n")
	sb.WriteString(IndentLines(c.Query.SQL(), "    "))
	sb.WriteString("\n)")
	return sb.String()
}

// WithCTE is a WITH clause wrapping a final query.
//
//	WITH spent AS (
//	    SELECT te.work_package_id, SUM(te.hours) AS hours ...
//	)
//	SELECT ... LEFT JOIN spent ...
type WithCTE struct {
	CTEs  []CTEDef
	Query SQLer
}

// SQL renders the complete WITH clause and final query.
func (w WithCTE) SQL() string {
	if len(w.CTEs) == 0 {
		return w.Query.SQL()
	}

	parts := make([]string, len(w.CTEs))
	for i, cte := range w.CTEs {
		parts[i] = cte.SQL()
	}
	return "WITH " + strings.Join(parts, ",\n") + "\n" + w.Query.SQL()
}
