// Package sqldsl provides a typed DSL for building the PostgreSQL queries
// issued by the hyperbatch stores.
//
// # Overview
//
// Queries are composed from typed building blocks instead of concatenated
// strings. Every value that comes from a caller is bound as a positional
// argument ($1, $2, ...) and never rendered into the SQL text, so the
// rendered statement for a given shape is identical across calls and can be
// prepared once.
//
// # Core Interfaces
//
//   - Expr: SQL expressions (columns, literals, operators, function calls)
//   - SQLer: complete statements (SELECT, WITH)
//   - TableExpr: anything usable in FROM or JOIN
//
// # Expression Types
//
//	Arg(1)                            // $1
//	Col{Table: "wp", Column: "id"}    // wp.id
//	Lit("Group")                      // 'Group'
//	Int(0)                            // 0
//	Raw("CURRENT_TIMESTAMP")          // escape hatch
//
// Operators:
//
//	Eq{Left: col, Right: Int(1)}      // col = 1
//	AnyArg{Expr: col, Arg: Arg(1)}    // col = ANY($1)
//	And(a, b, c)                      // (a AND b AND c)
//	Or(a, b)                          // (a OR b)
//	IsNull{Expr: col}                 // col IS NULL
//
// # Statements
//
//	stmt := SelectStmt{
//	    ColumnExprs: []Expr{Col{Table: "r", Column: "to_id"}},
//	    FromExpr:    TableAs("relations", "r"),
//	    Where:       AnyArg{Expr: Col{Table: "r", Column: "from_id"}, Arg: Arg(1)},
//	    OrderBy:     []OrderExpr{Desc(Col{Table: "r", Column: "hierarchy"})},
//	}
//	sql := stmt.SQL()
package sqldsl
