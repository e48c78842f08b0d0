// Package doctor provides health checks for the hyperbatch rendering stack.
//
// The doctor command checks that the registry agrees with the permission
// model, that the database has been migrated, that the visibility function
// answers, and that the hierarchy closure in the relations table is sound.
//
// Example usage:
//
//	d := doctor.New(db, "")
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pthm/hyperbatch"
	"github.com/pthm/hyperbatch/pgstore"
	"github.com/pthm/hyperbatch/pkg/parser"
	"github.com/pthm/hyperbatch/schema"
	"github.com/pthm/hyperbatch/workpackage"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Permission Model", "Hierarchy Data").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Option configures a Doctor.
type Option func(*Doctor)

// WithAPIBase sets the API base the registry is built with.
func WithAPIBase(base string) Option {
	return func(d *Doctor) { d.apiBase = base }
}

// Doctor performs health checks on a hyperbatch database.
type Doctor struct {
	db        hyperbatch.Querier
	modelPath string
	apiBase   string

	// Populated during Run
	registry *schema.Registry
	status   *pgstore.Status
}

// New creates a Doctor. An empty modelPath checks against the embedded
// work package permission model.
func New(db hyperbatch.Querier, modelPath string, opts ...Option) *Doctor {
	d := &Doctor{db: db, modelPath: modelPath, apiBase: hyperbatch.DefaultAPIBase}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	d.checkPermissionModel(report)
	if err := d.checkMigrationState(ctx, report); err != nil {
		return nil, fmt.Errorf("checking migration state: %w", err)
	}
	if err := d.checkVisibilityFunction(ctx, report); err != nil {
		return nil, fmt.Errorf("checking visibility function: %w", err)
	}
	if err := d.checkHierarchyData(ctx, report); err != nil {
		return nil, fmt.Errorf("checking hierarchy data: %w", err)
	}

	return report, nil
}

// checkPermissionModel builds the registry and validates it against the model.
func (d *Doctor) checkPermissionModel(report *Report) {
	const category = "Permission Model"

	reg, err := workpackage.NewRegistry(workpackage.WithAPIBase(d.apiBase))
	if err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "registry",
			Status:   StatusFail,
			Message:  "Work package registry does not build",
			Details:  err.Error(),
		})
		return
	}
	d.registry = reg

	report.AddCheck(CheckResult{
		Category: category,
		Name:     "registry",
		Status:   StatusPass,
		Message: fmt.Sprintf("Registry builds (%d properties, %d associations)",
			len(reg.Properties()), len(reg.Associations())),
	})

	source := "embedded model"
	var model *parser.Model
	if d.modelPath != "" {
		source = d.modelPath
		model, err = parser.ParseModel(d.modelPath)
	} else {
		model, err = workpackage.Model()
	}
	if err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "parse",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Permission model does not parse (%s)", source),
			Details:  err.Error(),
			FixHint:  "Run 'fga model validate' to see detailed errors",
		})
		return
	}

	report.AddCheck(CheckResult{
		Category: category,
		Name:     "parse",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Permission model is valid (%s, %d types)", source, len(model.Types)),
	})

	if err := workpackage.Validate(reg, model); err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "permissions",
			Status:   StatusFail,
			Message:  "Registry asks for permissions the model does not declare",
			Details:  err.Error(),
			FixHint:  fmt.Sprintf("Declare the missing relations on type %s", workpackage.ContainerType),
		})
		return
	}

	perms := reg.Permissions(schema.Role{Admin: true})
	var details []string
	if t, ok := model.Type(workpackage.ContainerType); ok {
		for _, p := range perms {
			details = append(details, fmt.Sprintf("%s: granted by %s", p, strings.Join(t.Grantors(p), ", ")))
		}
	}
	report.AddCheck(CheckResult{
		Category: category,
		Name:     "permissions",
		Status:   StatusPass,
		Message:  fmt.Sprintf("All %d registry permissions are declared", len(perms)),
		Details:  strings.Join(details, "\n"),
	})
}

// checkMigrationState validates the migration tracking table and state.
func (d *Doctor) checkMigrationState(ctx context.Context, report *Report) error {
	const category = "Migration State"

	status, err := pgstore.GetStatus(ctx, d.db)
	if err != nil {
		return err
	}
	d.status = status

	if !status.TablesExist {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "tables",
			Status:   StatusFail,
			Message:  "work_packages or relations table does not exist",
			FixHint:  "Run 'hyperbatch migrate' to create them",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "tables",
			Status:   StatusPass,
			Message:  "work_packages and relations tables exist",
		})
	}

	last := status.LastMigration
	switch {
	case last == nil:
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "migrated",
			Status:   StatusWarn,
			Message:  "No migration records found",
			FixHint:  "Run 'hyperbatch migrate' to apply the schema",
		})
	case !status.UpToDate:
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "migrated",
			Status:   StatusWarn,
			Message:  "Embedded SQL has changed since last migration",
			Details: fmt.Sprintf("Binary checksum: %s...\nDB checksum:     %s...\nVersion: %s, DB: %s",
				pgstore.Checksum()[:16], prefix(last.SchemaChecksum, 16), pgstore.SchemaVersion, last.Version),
			FixHint: "Run 'hyperbatch migrate' to apply changes",
		})
	default:
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "migrated",
			Status:   StatusPass,
			Message:  fmt.Sprintf("Schema is in sync with database (%d functions tracked)", len(last.FunctionNames)),
		})
	}
	return nil
}

// checkVisibilityFunction checks allowed_containers exists and answers.
func (d *Doctor) checkVisibilityFunction(ctx context.Context, report *Report) error {
	const category = "Visibility Function"

	if !d.status.FunctionExists {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "exists",
			Status:   StatusFail,
			Message:  "allowed_containers function does not exist",
			Details:  "Every projection will fail with ErrMissingFunction",
			FixHint:  "Run 'hyperbatch migrate' to create it",
		})
		return nil
	}

	report.AddCheck(CheckResult{
		Category: category,
		Name:     "exists",
		Status:   StatusPass,
		Message:  "allowed_containers function exists",
	})

	permission := workpackage.PermView
	if d.registry != nil {
		permission = d.registry.ViewPermission()
	}

	// Anonymous viewer: only public projects are visible.
	public, err := pgstore.CountAllowed(ctx, d.db, 0, permission)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "call",
			Status:   StatusFail,
			Message:  "allowed_containers cannot be called",
			Details:  err.Error(),
			FixHint:  "Run 'hyperbatch migrate --force' to recreate it",
		})
		return nil
	}

	report.AddCheck(CheckResult{
		Category: category,
		Name:     "call",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Anonymous viewers see %d projects with %s", public, permission),
	})
	return nil
}

// checkHierarchyData looks for closure rows the aggregator would report as
// anomalies or silently miss.
func (d *Doctor) checkHierarchyData(ctx context.Context, report *Report) error {
	const category = "Hierarchy Data"

	if !d.status.TablesExist {
		return nil // Already reported in migration check
	}

	h, err := pgstore.CheckHierarchy(ctx, d.db)
	if err != nil {
		return err
	}

	if h.SelfLoops > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "self_loops",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Found %d work packages that are their own ancestor", h.SelfLoops),
			FixHint:  "Delete hierarchy rows where from_id = to_id",
		})
	}
	if h.MultiParent > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "parents",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("Found %d work packages with more than one direct parent", h.MultiParent),
			Details:  "The lowest parent ID is rendered and an anomaly is logged",
		})
	}
	if h.ClosureGaps > 0 {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "closure",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("Found %d missing transitive hierarchy rows", h.ClosureGaps),
			Details:  "Ancestor lists will be incomplete for the affected work packages",
			FixHint:  "Rebuild the closure rows from the direct parent rows",
		})
	}
	if h.Healthy() {
		report.AddCheck(CheckResult{
			Category: category,
			Name:     "closure",
			Status:   StatusPass,
			Message:  "Hierarchy closure is consistent",
		})
	}
	return nil
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
