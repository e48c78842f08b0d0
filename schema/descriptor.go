package schema

// Method is the HTTP method an action link advertises. MethodRead is the
// default and is not rendered.
type Method string

const (
	MethodRead   Method = ""
	MethodPost   Method = "post"
	MethodPatch  Method = "patch"
	MethodDelete Method = "delete"
)

// Property is a scalar or structured field of the document.
type Property struct {
	Name  string
	Value Value
	// Guard suppresses the property when it does not hold. Nil always renders.
	Guard Condition
	// Permission, when set, must be granted on the entity's container.
	Permission  string
	Uncacheable bool
}

// PayloadField is one key of an action link payload.
type PayloadField struct {
	Name  string
	Value Value
}

// ActionLink is a link to an operation on the entity.
type ActionLink struct {
	Name        string
	Href        Template
	Method      Method
	Permission  string
	MediaType   string
	Title       Template
	Templated   bool
	Payload     []PayloadField
	Guard       Condition
	AdminOnly   bool
	Uncacheable bool
}

// Association is a link to another entity referenced by a foreign key.
type Association struct {
	// Name is the logical association name, e.g. "fixed_version".
	Name string
	// Key is the output key under _links; defaults to Name.
	Key string
	// ForeignKey is the entity attribute holding the target ID; defaults to Name+"_id".
	ForeignKey string
	// JoinTarget names the resolver table, e.g. "versions".
	JoinTarget string
	// Title is evaluated over the resolved target (see TargetAttributes).
	// Nil uses the target's name.
	Title Template
	// Href overrides the default href and is evaluated over the entity.
	Href  Template
	Guard Condition
}

// ActionList is a link whose value is a list of {href, title} entries
// supplied per entity by an action source, e.g. "customActions".
type ActionList struct {
	Name       string
	Permission string
}

// TargetAttributes are the attributes a resolved association target exposes
// to association title templates.
var TargetAttributes = []string{"id", "name", "path"}

// PropertyOption configures a property declaration.
type PropertyOption func(*Property)

// RenderIf guards a property.
func RenderIf(c Condition) PropertyOption {
	return func(p *Property) { p.Guard = c }
}

// RequirePermission makes a property depend on a container permission.
func RequirePermission(permission string) PropertyOption {
	return func(p *Property) { p.Permission = permission }
}

// UncacheableProperty marks a property to be computed fresh on every render.
func UncacheableProperty() PropertyOption {
	return func(p *Property) { p.Uncacheable = true }
}

// LinkOption configures an action link declaration.
type LinkOption func(*ActionLink)

// WithPermission gates the link on a container permission.
func WithPermission(permission string) LinkOption {
	return func(l *ActionLink) { l.Permission = permission }
}

// WithMethod sets the advertised HTTP method.
func WithMethod(m Method) LinkOption {
	return func(l *ActionLink) { l.Method = m }
}

// WithMediaType sets the advertised media type.
func WithMediaType(mediaType string) LinkOption {
	return func(l *ActionLink) { l.MediaType = mediaType }
}

// WithTitle sets the link title template.
func WithTitle(t Template) LinkOption {
	return func(l *ActionLink) { l.Title = t }
}

// Templated marks the href as a URI template.
func Templated() LinkOption {
	return func(l *ActionLink) { l.Templated = true }
}

// WithPayload attaches a request body skeleton to the link.
func WithPayload(fields ...PayloadField) LinkOption {
	return func(l *ActionLink) { l.Payload = append(l.Payload, fields...) }
}

// WithCondition guards the link.
func WithCondition(c Condition) LinkOption {
	return func(l *ActionLink) { l.Guard = c }
}

// AdminOnly hides the link from non-admin viewers.
func AdminOnly() LinkOption {
	return func(l *ActionLink) { l.AdminOnly = true }
}

// UncacheableLink marks the link to be computed fresh on every render.
func UncacheableLink() LinkOption {
	return func(l *ActionLink) { l.Uncacheable = true }
}

// AssociationOption configures an association declaration.
type AssociationOption func(*Association)

// WithAlias renders the association under a different key.
func WithAlias(key string) AssociationOption {
	return func(a *Association) { a.Key = key }
}

// WithForeignKey names the attribute holding the target ID.
func WithForeignKey(attr string) AssociationOption {
	return func(a *Association) { a.ForeignKey = attr }
}

// WithTargetTitle renders the title from the resolved target.
func WithTargetTitle(t Template) AssociationOption {
	return func(a *Association) { a.Title = t }
}

// WithHrefOverride replaces the default target href.
func WithHrefOverride(t Template) AssociationOption {
	return func(a *Association) { a.Href = t }
}

// WithAssociationCondition guards the association.
func WithAssociationCondition(c Condition) AssociationOption {
	return func(a *Association) { a.Guard = c }
}
