// Package sql provides the embedded SQL the hyperbatch stores read from.
package sql

import (
	_ "embed"
)

// Embedded SQL files applied idempotently by pgstore.Migrate. The binary
// carries everything it needs; no SQL files are read at runtime.

// SchemaSQL contains the tables the stores query: projects, principals,
// work packages and their lookup tables, relations, time entries, watchers,
// permission grants and custom actions. Applied via CREATE TABLE IF NOT EXISTS.
//
//go:embed schema.sql
var SchemaSQL string

// FunctionsSQL contains the visibility function:
//   - allowed_containers: active projects on which a user holds a permission
//
// Applied via CREATE OR REPLACE FUNCTION.
//
//go:embed functions.sql
var FunctionsSQL string

// MigrationsSQL contains the migration tracking table.
//
//go:embed migrations.sql
var MigrationsSQL string
