package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/hyperbatch/internal/cli"
	"github.com/pthm/hyperbatch/pgstore"
)

var statusDB string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current migration status",
	Long:  `Show whether the tables and the visibility function exist and whether the last migration is current.`,
	Example: `  # Check status
  hyperbatch status --db postgres://localhost/tracker`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(statusDB)
		if err != nil {
			return err
		}
		return runStatus(cmd.Context(), dsn)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "", "database URL")
}

func runStatus(ctx context.Context, dsn string) error {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	s, err := pgstore.GetStatus(ctx, db)
	if err != nil {
		return cli.GeneralError("getting status", err)
	}

	fmt.Printf("Tables:        %s\n", presence(s.TablesExist))
	fmt.Printf("Visibility fn: %s\n", presence(s.FunctionExists))

	switch {
	case s.LastMigration == nil:
		fmt.Println("Last applied:  never")
		fmt.Println("\nRun 'hyperbatch migrate' to install the schema.")
	case !s.UpToDate:
		fmt.Printf("Last applied:  %s (version %s)\n", s.LastMigration.AppliedAt.Format("2006-01-02 15:04:05"), s.LastMigration.Version)
		fmt.Println("\nSchema is out of date. Run 'hyperbatch migrate'.")
	default:
		fmt.Printf("Last applied:  %s (version %s)\n", s.LastMigration.AppliedAt.Format("2006-01-02 15:04:05"), s.LastMigration.Version)
		fmt.Println("\nSchema is up to date.")
	}
	return nil
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
