// Package schema declares how an entity kind is rendered into a hypermedia
// document: its properties, its action links and its association links.
//
// # Registration
//
// A Registry is assembled once per document kind with a Builder and is
// immutable afterwards:
//
//	b := schema.NewBuilder("WorkPackage", catalog,
//	    schema.WithViewPermission("view_work_packages"))
//	b.DeclareProperty("subject", schema.Column("subject"))
//	b.DeclareActionLink("update",
//	    schema.Join(schema.Lit("/api/v3/work_packages/"), schema.Attr("id"), schema.Lit("/form")),
//	    schema.WithPermission("edit_work_packages"),
//	    schema.WithMethod(schema.MethodPost))
//	b.DeclareAssociationLink("fixed_version", "versions", schema.WithAlias("version"))
//	reg, err := b.Build()
//
// Build validates every declaration against the attribute catalog and
// returns an error wrapping ErrInvalidRegistry when any template, condition
// or value references an unknown attribute, when a Sprintf template has the
// wrong number of substitutions, when names collide, or when a cacheable
// descriptor depends on the viewer.
//
// # Templates, Conditions and Values
//
// Hrefs and titles are Templates, guards are Conditions and property bodies
// are Values. All three are built from typed combinators and report their
// dependencies (entity attributes, global settings, viewer facts) through
// Deps, which is how the registry derives its permission set and the
// settings that participate in cache keys. Nothing is parsed at render time.
//
// # Querying
//
// Query methods take the viewer Role explicitly. ActionLinks(Role{}) omits
// admin-only links; Permissions(role) returns the sorted, deduplicated set of
// permission names needed to render a document for that role.
package schema
