package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/hyperbatch/internal/cli"
	"github.com/pthm/hyperbatch/internal/doctor"
)

var (
	doctorDB      string
	doctorModel   string
	doctorVerbose bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long:  `Check the permission model, migration state, visibility function and hierarchy data.`,
	Example: `  # Run health checks
  hyperbatch doctor --db postgres://localhost/tracker

  # Run with verbose output
  hyperbatch doctor --db postgres://localhost/tracker --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		modelPath := resolveString(doctorModel, cfg.Model.Path)

		dsn, err := resolveDSN(doctorDB)
		if err != nil {
			return err
		}

		return runDoctor(cmd.Context(), dsn, modelPath, resolveBool(doctorVerbose, verbose > 0))
	},
}

func init() {
	f := doctorCmd.Flags()
	f.StringVar(&doctorDB, "db", "", "database URL")
	f.StringVar(&doctorModel, "model", "", "path to the OpenFGA permission model")
	f.BoolVar(&doctorVerbose, "details", false, "show detailed output")
}

func runDoctor(ctx context.Context, dsn, modelPath string, details bool) error {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if !quiet {
		fmt.Println("hyperbatch doctor - Health Check")
	}

	d := doctor.New(db, modelPath, doctor.WithAPIBase(cfg.Render.APIBase))
	report, err := d.Run(ctx)
	if err != nil {
		return cli.GeneralError("running doctor", err)
	}

	report.Print(os.Stdout, details)

	if report.HasErrors() {
		return cli.GeneralError("health checks failed", nil)
	}
	return nil
}
