package pgstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/pthm/hyperbatch"
	hbsql "github.com/pthm/hyperbatch/sql"
)

// SchemaVersion is incremented when migration logic changes in a way that
// must re-run even though the embedded SQL is unchanged.
const SchemaVersion = "1"

// managedFunctions are the functions FunctionsSQL creates. Functions a
// previous migration recorded that are no longer listed here are dropped.
var managedFunctions = []string{"allowed_containers"}

// MigrateOptions controls migration behavior.
type MigrateOptions struct {
	// DryRun writes the SQL to the writer instead of applying it.
	DryRun io.Writer

	// Force re-applies the SQL even if the last recorded migration matches.
	Force bool
}

// MigrationRecord is a row of hyperbatch_migrations.
type MigrationRecord struct {
	SchemaChecksum string
	Version        string
	FunctionNames  []string
	AppliedAt      time.Time
}

// Checksum returns the SHA256 of the embedded SQL. A migration is skipped
// when the last record carries the same checksum and SchemaVersion.
func Checksum() string {
	h := sha256.Sum256([]byte(hbsql.SchemaSQL + hbsql.FunctionsSQL))
	return hex.EncodeToString(h[:])
}

// Migrate installs the tables and the allowed_containers function. It is
// idempotent and safe to run on every application start.
func Migrate(ctx context.Context, db hyperbatch.Execer) error {
	_, err := MigrateWithOptions(ctx, db, MigrateOptions{})
	return err
}

// MigrateWithOptions migrates with control over dry-run and skip behavior.
// It reports skipped=true when the last recorded migration already matches
// the embedded SQL.
//
// The SQL is applied in a transaction when db supports BeginTx (*sql.DB).
func MigrateWithOptions(ctx context.Context, db hyperbatch.Execer, opts MigrateOptions) (skipped bool, err error) {
	checksum := Checksum()

	if opts.DryRun != nil {
		writeDryRun(opts.DryRun, checksum)
		return false, nil
	}

	if !opts.Force {
		last, err := LastMigration(ctx, db)
		if err != nil {
			return false, fmt.Errorf("checking last migration: %w", err)
		}
		if last != nil && last.SchemaChecksum == checksum && last.Version == SchemaVersion {
			return true, nil
		}
	}

	if txer, ok := db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return false, fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := apply(ctx, tx, checksum); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}

	// Fall back to non-transactional (for *sql.Tx)
	return false, apply(ctx, db, checksum)
}

func apply(ctx context.Context, db hyperbatch.Execer, checksum string) error {
	if _, err := db.ExecContext(ctx, hbsql.MigrationsSQL); err != nil {
		return fmt.Errorf("applying migrations DDL: %w", err)
	}

	previous, err := LastMigration(ctx, db)
	if err != nil {
		return fmt.Errorf("checking last migration: %w", err)
	}

	if _, err := db.ExecContext(ctx, hbsql.SchemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, hbsql.FunctionsSQL); err != nil {
		return fmt.Errorf("applying functions: %w", err)
	}

	if previous != nil {
		if err := dropOrphanedFunctions(ctx, db, previous.FunctionNames); err != nil {
			return err
		}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO hyperbatch_migrations (schema_checksum, version, function_names)
		VALUES ($1, $2, $3)
	`, checksum, SchemaVersion, pq.Array(managedFunctions))
	if err != nil {
		return fmt.Errorf("inserting migration record: %w", err)
	}
	return nil
}

// dropOrphanedFunctions drops recorded functions that are no longer managed.
func dropOrphanedFunctions(ctx context.Context, db hyperbatch.Execer, recorded []string) error {
	for _, fn := range recorded {
		if slices.Contains(managedFunctions, fn) {
			continue
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP FUNCTION IF EXISTS %s CASCADE", pq.QuoteIdentifier(fn))); err != nil {
			return fmt.Errorf("dropping orphaned function %s: %w", fn, err)
		}
	}
	return nil
}

// LastMigration returns the most recent migration record, or nil if the
// database has never been migrated.
func LastMigration(ctx context.Context, q hyperbatch.Querier) (*MigrationRecord, error) {
	exists, err := relationExists(ctx, q, "hyperbatch_migrations")
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var rec MigrationRecord
	err = q.QueryRowContext(ctx, `
		SELECT schema_checksum, version, function_names, applied_at
		FROM hyperbatch_migrations
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&rec.SchemaChecksum, &rec.Version, pq.Array(&rec.FunctionNames), &rec.AppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last migration: %w", err)
	}
	return &rec, nil
}

// Status is the migration state of a database.
type Status struct {
	// TablesExist reports whether the work_packages and relations tables exist.
	TablesExist bool

	// FunctionExists reports whether allowed_containers exists.
	FunctionExists bool

	// LastMigration is the most recent record, nil if never migrated.
	LastMigration *MigrationRecord

	// UpToDate reports whether the last migration matches the embedded SQL.
	UpToDate bool
}

// GetStatus returns the current migration status. Useful for health checks.
func GetStatus(ctx context.Context, q hyperbatch.Querier) (*Status, error) {
	status := &Status{}

	wp, err := relationExists(ctx, q, "work_packages")
	if err != nil {
		return nil, err
	}
	rel, err := relationExists(ctx, q, "relations")
	if err != nil {
		return nil, err
	}
	status.TablesExist = wp && rel

	err = q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_proc p
			JOIN pg_namespace n ON n.oid = p.pronamespace
			WHERE p.proname = 'allowed_containers'
			AND n.nspname = current_schema()
		)
	`).Scan(&status.FunctionExists)
	if err != nil {
		return nil, fmt.Errorf("checking allowed_containers: %w", err)
	}

	status.LastMigration, err = LastMigration(ctx, q)
	if err != nil {
		return nil, err
	}
	status.UpToDate = status.LastMigration != nil &&
		status.LastMigration.SchemaChecksum == Checksum() &&
		status.LastMigration.Version == SchemaVersion
	return status, nil
}

// relationExists reports whether a table, view or materialized view named
// name exists in the current schema.
func relationExists(ctx context.Context, q hyperbatch.Querier, name string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = $1
			AND n.nspname = current_schema()
			AND c.relkind IN ('r', 'v', 'm')
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", name, err)
	}
	return exists, nil
}

// writeDryRun writes the migration SQL to w.
func writeDryRun(w io.Writer, checksum string) {
	section := func(title string) {
		_, _ = fmt.Fprintf(w, "-- ============================================================\n")
		_, _ = fmt.Fprintf(w, "-- %s\n", title)
		_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
	}

	_, _ = fmt.Fprintf(w, "-- hyperbatch migration (dry-run)\n")
	_, _ = fmt.Fprintf(w, "-- Schema checksum: %s\n", checksum)
	_, _ = fmt.Fprintf(w, "-- Schema version: %s\n\n", SchemaVersion)

	section("DDL: Migration Tracking Table")
	_, _ = fmt.Fprintf(w, "%s\n", strings.TrimSpace(hbsql.MigrationsSQL))
	_, _ = fmt.Fprintf(w, "\n")

	section("DDL: Tables")
	_, _ = fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(hbsql.SchemaSQL))

	section(fmt.Sprintf("Functions (%d functions)", len(managedFunctions)))
	_, _ = fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(hbsql.FunctionsSQL))

	section("Migration Record")
	quoted := make([]string, len(managedFunctions))
	for i, fn := range managedFunctions {
		quoted[i] = fmt.Sprintf("'%s'", fn)
	}
	_, _ = fmt.Fprintf(w, "INSERT INTO hyperbatch_migrations (schema_checksum, version, function_names)\n")
	_, _ = fmt.Fprintf(w, "VALUES ('%s', '%s', ARRAY[%s]);\n", checksum, SchemaVersion, strings.Join(quoted, ", "))
}
