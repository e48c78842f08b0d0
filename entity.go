package hyperbatch

import "time"

// Entity is one work item as loaded by an EntityStore.
type Entity struct {
	ID                  ID
	ContainerID         ID
	ContainerIdentifier string

	TypeID     ID
	Milestone  bool
	StatusID   ID
	PriorityID ID

	// Optional references; zero means unset.
	CategoryID    ID
	AuthorID      ID
	AssigneeID    ID
	ResponsibleID ID
	VersionID     ID

	Subject     string
	Description string

	StartDate *time.Time
	DueDate   *time.Time

	EstimatedHours        *float64
	DerivedEstimatedHours *float64
	SpentHours            float64
	DoneRatio             *int

	LockVersion int
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Checksum changes whenever anything the cacheable part of the document
	// depends on changes. It is opaque to the projector.
	Checksum string
}

// EntityAttributes is the attribute catalog of Entity. Registries for
// entities are validated against it.
var EntityAttributes = []string{
	"id", "project_id", "project_identifier",
	"type_id", "milestone", "status_id", "priority_id",
	"category_id", "author_id", "assigned_to_id", "responsible_id", "fixed_version_id",
	"subject", "description",
	"start_date", "due_date",
	"estimated_hours", "derived_estimated_hours", "spent_hours", "done_ratio",
	"lock_version", "created_at", "updated_at",
}

// Attr implements schema.EntityView.
func (e *Entity) Attr(name string) (any, bool) {
	switch name {
	case "id":
		return e.ID, true
	case "project_id":
		return e.ContainerID, true
	case "project_identifier":
		return e.ContainerIdentifier, true
	case "type_id":
		return e.TypeID, true
	case "milestone":
		return e.Milestone, true
	case "status_id":
		return e.StatusID, true
	case "priority_id":
		return e.PriorityID, true
	case "category_id":
		return optionalID(e.CategoryID), true
	case "author_id":
		return optionalID(e.AuthorID), true
	case "assigned_to_id":
		return optionalID(e.AssigneeID), true
	case "responsible_id":
		return optionalID(e.ResponsibleID), true
	case "fixed_version_id":
		return optionalID(e.VersionID), true
	case "subject":
		return e.Subject, true
	case "description":
		return e.Description, true
	case "start_date":
		return optionalTime(e.StartDate), true
	case "due_date":
		return optionalTime(e.DueDate), true
	case "estimated_hours":
		return optionalFloat(e.EstimatedHours), true
	case "derived_estimated_hours":
		return optionalFloat(e.DerivedEstimatedHours), true
	case "spent_hours":
		return e.SpentHours, true
	case "done_ratio":
		if e.DoneRatio == nil {
			return nil, true
		}
		return *e.DoneRatio, true
	case "lock_version":
		return e.LockVersion, true
	case "created_at":
		return e.CreatedAt, true
	case "updated_at":
		return e.UpdatedAt, true
	}
	return nil, false
}

func optionalID(id ID) any {
	if id == 0 {
		return nil
	}
	return id
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func optionalFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
