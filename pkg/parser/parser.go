// Package parser reads the OpenFGA permission model that names the
// permissions documents are rendered against.
//
// The model documents which permissions exist on the container type and how
// they are granted. Registries are validated against it so a misspelt
// permission fails at startup instead of silently hiding a link.
//
// # Basic Usage
//
//	model, err := parser.ParseModel("permissions.fga")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = parser.ValidatePermissions(model, "project", reg.Permissions(schema.Role{Admin: true}))
//
// # Supported Rules
//
// The allowed_containers SQL function flattens membership into
// (project, principal, permission) rows, so only rules that reduce to such
// rows are accepted: direct assignment, implied relations on the same type,
// inheritance from a related object, and unions of those. Intersections and
// exclusions are rejected with ErrUnsupportedRule.
//
// # Dependency Isolation
//
// This is the only package that imports the OpenFGA language parser.
package parser

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"
	"github.com/openfga/language/pkg/go/transformer"
)

var (
	// ErrInvalidModel is returned when the DSL does not parse.
	ErrInvalidModel = errors.New("parser: invalid permission model")

	// ErrUnsupportedRule is returned for intersections and exclusions.
	ErrUnsupportedRule = errors.New("parser: unsupported rule")

	// ErrUnknownType is returned when a type is not declared in the model.
	ErrUnknownType = errors.New("parser: unknown type")

	// ErrUnknownPermission is returned when a permission is not a relation
	// of the container type.
	ErrUnknownPermission = errors.New("parser: unknown permission")
)

// Model is a parsed permission model.
type Model struct {
	Types []Type
}

// Type is one model type with its relations sorted by name.
type Type struct {
	Name      string
	Relations []Relation
}

// Relation is one relation of a type.
type Relation struct {
	Name string
	// Subjects are the directly assignable subject types.
	Subjects []SubjectRef
	// ImpliedBy lists relations on the same type that grant this one.
	ImpliedBy []string
	// Inherited lists relations on related objects that grant this one.
	Inherited []ParentRef
}

// SubjectRef is a directly assignable subject: user, group#member or user:*.
type SubjectRef struct {
	Type     string
	Relation string
	Wildcard bool
}

func (s SubjectRef) String() string {
	switch {
	case s.Wildcard:
		return s.Type + ":*"
	case s.Relation != "":
		return s.Type + "#" + s.Relation
	default:
		return s.Type
	}
}

// ParentRef is "Relation from Via".
type ParentRef struct {
	Relation string
	Via      string
}

// ParseModel reads an OpenFGA .fga file.
func ParseModel(path string) (*Model, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading permission model: %w", err)
	}
	return ParseModelString(string(content))
}

// ParseModelString parses OpenFGA DSL content.
func ParseModelString(content string) (*Model, error) {
	model, err := transformer.TransformDSLToProto(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return ConvertProtoModel(model)
}

// ConvertProtoModel converts a protobuf AuthorizationModel, e.g. one fetched
// from an OpenFGA server, without going through the DSL.
func ConvertProtoModel(model *openfgav1.AuthorizationModel) (*Model, error) {
	typeDefs := model.GetTypeDefinitions()
	out := &Model{Types: make([]Type, 0, len(typeDefs))}
	var errs []error

	for _, td := range typeDefs {
		t := Type{Name: td.GetType()}
		direct := directSubjects(td)

		relMap := td.GetRelations()
		names := make([]string, 0, len(relMap))
		for name := range relMap {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			rel := Relation{Name: name, Subjects: direct[name]}
			if err := extractUserset(relMap[name], &rel); err != nil {
				errs = append(errs, fmt.Errorf("%s#%s: %w", t.Name, name, err))
			}
			t.Relations = append(t.Relations, rel)
		}
		out.Types = append(out.Types, t)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// directSubjects reads the directly related user types from the metadata.
func directSubjects(td *openfgav1.TypeDefinition) map[string][]SubjectRef {
	out := make(map[string][]SubjectRef)
	meta := td.GetMetadata()
	if meta == nil {
		return out
	}
	for name, rm := range meta.GetRelations() {
		for _, t := range rm.GetDirectlyRelatedUserTypes() {
			ref := SubjectRef{Type: t.GetType()}
			switch v := t.GetRelationOrWildcard().(type) {
			case *openfgav1.RelationReference_Wildcard:
				ref.Wildcard = true
			case *openfgav1.RelationReference_Relation:
				ref.Relation = v.Relation
			}
			out[name] = append(out[name], ref)
		}
	}
	return out
}

// extractUserset flattens a userset tree into rel.
func extractUserset(us *openfgav1.Userset, rel *Relation) error {
	if us == nil {
		return nil
	}

	switch v := us.Userset.(type) {
	case *openfgav1.Userset_This:
		// Direct assignment; subjects come from the metadata.

	case *openfgav1.Userset_ComputedUserset:
		rel.ImpliedBy = append(rel.ImpliedBy, v.ComputedUserset.GetRelation())

	case *openfgav1.Userset_TupleToUserset:
		rel.Inherited = append(rel.Inherited, ParentRef{
			Relation: v.TupleToUserset.GetComputedUserset().GetRelation(),
			Via:      v.TupleToUserset.GetTupleset().GetRelation(),
		})

	case *openfgav1.Userset_Union:
		for _, child := range v.Union.GetChild() {
			if err := extractUserset(child, rel); err != nil {
				return err
			}
		}

	case *openfgav1.Userset_Intersection:
		return fmt.Errorf("%w: intersection", ErrUnsupportedRule)

	case *openfgav1.Userset_Difference:
		return fmt.Errorf("%w: exclusion", ErrUnsupportedRule)
	}
	return nil
}

// Type returns the named type.
func (m *Model) Type(name string) (Type, bool) {
	i := slices.IndexFunc(m.Types, func(t Type) bool { return t.Name == name })
	if i < 0 {
		return Type{}, false
	}
	return m.Types[i], true
}

// Relation returns the named relation.
func (t Type) Relation(name string) (Relation, bool) {
	i := slices.IndexFunc(t.Relations, func(r Relation) bool { return r.Name == name })
	if i < 0 {
		return Relation{}, false
	}
	return t.Relations[i], true
}

// Grantors returns, sorted, every relation of the type that grants relation
// directly or transitively through ImpliedBy, including relation itself.
func (t Type) Grantors(relation string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if r, ok := t.Relation(name); ok {
			for _, by := range r.ImpliedBy {
				walk(by)
			}
		}
	}
	walk(relation)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidatePermissions checks that every permission is a relation of
// containerType. All unknown permissions are reported.
func ValidatePermissions(m *Model, containerType string, permissions []string) error {
	t, ok := m.Type(containerType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, containerType)
	}
	var errs []error
	for _, p := range permissions {
		if _, ok := t.Relation(p); !ok {
			errs = append(errs, fmt.Errorf("%w: %s#%s", ErrUnknownPermission, containerType, p))
		}
	}
	return errors.Join(errs...)
}
