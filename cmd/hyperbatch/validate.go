package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/hyperbatch/internal/cli"
	"github.com/pthm/hyperbatch/pkg/parser"
	"github.com/pthm/hyperbatch/schema"
	"github.com/pthm/hyperbatch/workpackage"
)

var validateModel string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the registry against the permission model",
	Long: `Build the work package registry and check that every permission it can
ask for is a relation of the project type in the OpenFGA permission model.

Without --model or model.path the embedded model is used.`,
	Example: `  # Validate against the embedded model
  hyperbatch validate

  # Validate against a deployed model
  hyperbatch validate --model authz/permissions.fga`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveString(validateModel, cfg.Model.Path)

		reg, err := workpackage.NewRegistry(workpackage.WithAPIBase(cfg.Render.APIBase))
		if err != nil {
			return cli.RegistryError("building registry", err)
		}

		var model *parser.Model
		if path != "" {
			model, err = parser.ParseModel(path)
		} else {
			model, err = workpackage.Model()
		}
		if err != nil {
			return cli.RegistryError("parsing permission model", err)
		}

		if err := workpackage.Validate(reg, model); err != nil {
			return cli.RegistryError("registry does not match permission model", err)
		}

		if !quiet {
			fmt.Printf("Registry %q is valid.\n", reg.Kind())
			fmt.Printf("  properties:   %d\n", len(reg.Properties()))
			fmt.Printf("  associations: %d\n", len(reg.Associations()))
			fmt.Printf("  permissions:  %v\n", reg.Permissions(schema.Role{Admin: true}))
			fmt.Printf("  settings:     %v\n", reg.CacheSettings())
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateModel, "model", "", "path to the OpenFGA permission model")
}
