package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pthm/hyperbatch/internal/cli"
	"github.com/pthm/hyperbatch/pgstore"
)

var (
	migrateDB     string
	migrateDryRun bool
	migrateForce  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Install tables and the visibility function",
	Long:  `Create the work package tables and the allowed_containers function in PostgreSQL.`,
	Example: `  # Apply to database
  hyperbatch migrate --db postgres://localhost/tracker

  # Preview migration without applying
  hyperbatch migrate --db postgres://localhost/tracker --dry-run

  # Force re-apply even if the SQL is unchanged
  hyperbatch migrate --db postgres://localhost/tracker --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateDryRun {
			return runMigrate(cmd.Context(), "", true, false)
		}
		dsn, err := resolveDSN(migrateDB)
		if err != nil {
			return err
		}
		return runMigrate(cmd.Context(), dsn, false, migrateForce)
	},
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateDB, "db", "", "database URL")
	f.BoolVar(&migrateDryRun, "dry-run", false, "output migration SQL without applying")
	f.BoolVar(&migrateForce, "force", false, "force migration even if SQL unchanged")
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}

// openDB opens and pings the database.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, cli.DBConnectError("connecting to database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, cli.DBConnectError("connecting to database", err)
	}
	return db, nil
}

func runMigrate(ctx context.Context, dsn string, dryRun, force bool) error {
	opts := pgstore.MigrateOptions{Force: force}

	if dryRun {
		opts.DryRun = os.Stdout
		if !quiet {
			fmt.Fprintln(os.Stderr, "-- Dry-run mode: SQL will be output but not applied")
			fmt.Fprintln(os.Stderr, "")
		}
		// Dry runs never touch the database.
		_, err := pgstore.MigrateWithOptions(ctx, nil, opts)
		return err
	}

	db, err := openDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if !quiet {
		fmt.Println("Applying hyperbatch schema...")
	}

	skipped, err := pgstore.MigrateWithOptions(ctx, db, opts)
	if err != nil {
		return cli.GeneralError("migration failed", err)
	}

	if !quiet {
		if skipped {
			fmt.Println("Schema unchanged, migration skipped.")
			fmt.Println("Use --force to re-apply.")
		} else {
			fmt.Println("Schema applied successfully.")
		}
	}
	return nil
}
