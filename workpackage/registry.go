// Package workpackage declares the WorkPackage document kind: its
// properties, action links and associations, the permission model they are
// checked against, and the date coupling of milestone types.
//
//	reg, err := workpackage.NewRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	proj := hyperbatch.NewProjector(reg, stores)
package workpackage

import (
	"github.com/pthm/hyperbatch"
	"github.com/pthm/hyperbatch/schema"
)

// Kind is the _type of rendered work packages.
const Kind = "WorkPackage"

// Permissions checked on the work package's project.
const (
	PermView            = "view_work_packages"
	PermEdit            = "edit_work_packages"
	PermDelete          = "delete_work_packages"
	PermAdd             = "add_work_packages"
	PermLogTime         = "log_time"
	PermViewTimeEntries = "view_time_entries"
	PermAddWatchers     = "add_work_package_watchers"
	PermExport          = "export_work_packages"
)

// Global settings read by the registry. Their values are part of every
// cache key.
const (
	SettingDoneRatio    = "work_package_done_ratio"
	SettingFeedsEnabled = "feeds_enabled"
)

// ListCustomActions is the action list of custom workflow actions. It is
// resolved per viewer by a hyperbatch.ActionSource.
const ListCustomActions = "customActions"

// DoneRatioDisabled is the SettingDoneRatio value that hides percentageDone.
const DoneRatioDisabled = "disabled"

// Option configures NewRegistry.
type Option func(*config)

type config struct {
	apiBase string
}

// WithAPIBase sets the href prefix of action links. It should match the
// projector's hyperbatch.WithAPIBase.
func WithAPIBase(base string) Option {
	return func(c *config) {
		c.apiBase = base
	}
}

// NewRegistry builds the WorkPackage registry.
func NewRegistry(opts ...Option) (*schema.Registry, error) {
	c := config{apiBase: hyperbatch.DefaultAPIBase}
	for _, opt := range opts {
		opt(&c)
	}

	wp := func(suffix string) schema.Template {
		return schema.Sprintf(c.apiBase+"/work_packages/%s"+suffix, "id")
	}
	notMilestone := schema.Not(schema.AttrTrue("milestone"))

	return schema.NewBuilder(Kind, hyperbatch.EntityAttributes,
		schema.WithViewPermission(PermView),
	).
		// Properties
		DeclareProperty("id", schema.Column("id")).
		DeclareProperty("lockVersion", schema.Int("lock_version")).
		DeclareProperty("subject", schema.Column("subject")).
		DeclareProperty("description", schema.Formattable("description", "markdown")).
		DeclareProperty("startDate", schema.Date("start_date"), schema.RenderIf(notMilestone)).
		DeclareProperty("dueDate", schema.Date("due_date"), schema.RenderIf(notMilestone)).
		DeclareProperty("date", schema.Date("due_date"), schema.RenderIf(schema.AttrTrue("milestone"))).
		DeclareProperty("estimatedTime", schema.Duration("estimated_hours", true)).
		DeclareProperty("derivedEstimatedTime", schema.Duration("derived_estimated_hours", true)).
		DeclareProperty("spentTime", schema.Duration("spent_hours", false),
			schema.RequirePermission(PermViewTimeEntries),
			schema.UncacheableProperty()).
		DeclareProperty("percentageDone", schema.Column("done_ratio"),
			schema.RenderIf(schema.SettingNotEquals(SettingDoneRatio, DoneRatioDisabled))).
		DeclareProperty("createdAt", schema.DateTime("created_at")).
		DeclareProperty("updatedAt", schema.DateTime("updated_at")).

		// Action links
		DeclareActionLink("self", wp(""),
			schema.WithTitle(schema.Attr("subject"))).
		DeclareActionLink("update", wp("/form"),
			schema.WithPermission(PermEdit),
			schema.WithMethod(schema.MethodPost)).
		DeclareActionLink("updateImmediately", wp(""),
			schema.WithPermission(PermEdit),
			schema.WithMethod(schema.MethodPatch)).
		DeclareActionLink("delete", wp(""),
			schema.WithPermission(PermDelete),
			schema.WithMethod(schema.MethodDelete)).
		DeclareActionLink("addChild", schema.Sprintf(c.apiBase+"/projects/%s/work_packages", "project_identifier"),
			schema.WithPermission(PermAdd),
			schema.WithMethod(schema.MethodPost),
			schema.WithTitle(schema.Sprintf("Add child of %s", "subject")),
			schema.WithCondition(notMilestone)).
		DeclareActionLink("logTime", schema.Sprintf("/work_packages/%s/time_entries/new", "id"),
			schema.WithPermission(PermLogTime),
			schema.WithMediaType("text/html"),
			schema.WithTitle(schema.Sprintf("Log time on %s", "subject")),
			schema.UncacheableLink()).
		DeclareActionLink("watchers", wp("/watchers"),
			schema.WithPermission(PermView)).
		DeclareActionLink("addWatcher", wp("/watchers"),
			schema.WithPermission(PermAddWatchers),
			schema.WithMethod(schema.MethodPost),
			schema.WithPayload(schema.PayloadField{
				Name:  "user",
				Value: hrefObject{schema.Lit(c.apiBase + "/users/{user_id}")},
			}),
			schema.Templated()).
		DeclareActionLink("watch", wp("/watchers"),
			schema.WithPermission(PermView),
			schema.WithMethod(schema.MethodPost),
			schema.WithPayload(schema.PayloadField{
				Name:  "user",
				Value: hrefObject{schema.Join(schema.Lit(c.apiBase+"/users/"), schema.ViewerID())},
			}),
			schema.WithCondition(schema.Not(schema.ViewerWatching())),
			schema.UncacheableLink()).
		DeclareActionLink("unwatch", schema.Join(wp("/watchers/"), schema.ViewerID()),
			schema.WithPermission(PermView),
			schema.WithMethod(schema.MethodDelete),
			schema.WithCondition(schema.ViewerWatching()),
			schema.UncacheableLink()).
		DeclareActionLink("pdf", schema.Sprintf("/work_packages/%s.pdf", "id"),
			schema.WithPermission(PermExport),
			schema.WithMediaType("application/pdf"),
			schema.WithTitle(schema.Lit("Export as PDF"))).
		DeclareActionLink("atom", schema.Sprintf("/work_packages/%s.atom", "id"),
			schema.WithPermission(PermExport),
			schema.WithMediaType("application/rss+xml"),
			schema.WithTitle(schema.Lit("Atom feed")),
			schema.WithCondition(schema.SettingEnabled(SettingFeedsEnabled))).
		DeclareActionLink("configureForm", schema.Sprintf("/types/%s/edit#tab-form-configuration", "type_id"),
			schema.WithMediaType("text/html"),
			schema.WithTitle(schema.Lit("Configure form")),
			schema.AdminOnly()).
		DeclareActionLink("schema", schema.Sprintf(c.apiBase+"/work_packages/schemas/%s-%s", "project_id", "type_id")).

		// Associations
		DeclareAssociationLink("category", "categories").
		DeclareAssociationLink("type", "types").
		DeclareAssociationLink("priority", "priorities").
		DeclareAssociationLink("project", "projects").
		DeclareAssociationLink("status", "statuses").
		DeclareAssociationLink("author", "principals").
		DeclareAssociationLink("responsible", "principals").
		DeclareAssociationLink("assignee", "principals", schema.WithForeignKey("assigned_to_id")).
		DeclareAssociationLink("version", "versions", schema.WithForeignKey("fixed_version_id")).
		DeclareActionList(ListCustomActions, PermEdit).
		Build()
}

// hrefObject renders a payload field as {"href": ...}.
type hrefObject struct{ t schema.Template }

func (h hrefObject) Eval(env schema.Env) (any, error) {
	href, err := h.t.Render(env)
	if err != nil {
		return nil, err
	}
	return map[string]string{"href": href}, nil
}

func (h hrefObject) Deps() schema.Deps { return h.t.Deps() }
