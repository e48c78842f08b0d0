package workpackage

import (
	_ "embed"

	"github.com/pthm/hyperbatch/pkg/parser"
	"github.com/pthm/hyperbatch/schema"
)

// ContainerType is the model type permissions are granted on.
const ContainerType = "project"

// ModelDSL is the OpenFGA model of work package permissions.
//
//go:embed permissions.fga
var ModelDSL string

// Model parses ModelDSL.
func Model() (*parser.Model, error) {
	return parser.ParseModelString(ModelDSL)
}

// Validate checks that every permission reg can ask for, including admin-only
// links, is declared on the container type of model.
func Validate(reg *schema.Registry, model *parser.Model) error {
	return parser.ValidatePermissions(model, ContainerType, reg.Permissions(schema.Role{Admin: true}))
}
