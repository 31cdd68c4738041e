package ports

import (
	"context"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
)

// TemplateFilter narrows FindAll results
type TemplateFilter struct {
	EntityType *string
	ActiveOnly bool
}

// TemplateRepository persists workflow templates. Implementations return
// pkg/errors typed errors for not-found and conflict conditions.
type TemplateRepository interface {
	Insert(ctx context.Context, tpl *workflow.Template) error
	Update(ctx context.Context, tpl *workflow.Template) error
	GetByID(ctx context.Context, id string) (*workflow.Template, error)
	// GetByVersion re-reads a template by the composite key an instance
	// pins at creation time. The version acts as a guard: a row whose
	// version no longer matches is not returned.
	GetByVersion(ctx context.Context, id string, version int) (*workflow.Template, error)
	FindAll(ctx context.Context, organizationID string, filter TemplateFilter) ([]*workflow.Template, error)
	FindDefault(ctx context.Context, organizationID, entityType string) (*workflow.Template, error)
	// UnsetDefault clears is_default on every template for the given
	// organization and entity type.
	UnsetDefault(ctx context.Context, organizationID, entityType string) error
	// ExistsByName reports whether any version of a template with this
	// name exists in the organization.
	ExistsByName(ctx context.Context, organizationID, name string) (bool, error)
	ListVersions(ctx context.Context, rootID string) ([]*workflow.Template, error)
	Delete(ctx context.Context, id string) error
}

// InstanceRepository persists workflow instances. UpdateState performs an
// optimistic write guarded by the revision the caller read; a stale revision
// surfaces as a ConflictError.
type InstanceRepository interface {
	// Insert creates the instance. A duplicate (organization, entityType,
	// entityID) surfaces as a ConflictError via the table's unique key.
	Insert(ctx context.Context, inst *workflow.Instance) error
	GetByID(ctx context.Context, id string) (*workflow.Instance, error)
	GetByEntity(ctx context.Context, organizationID, entityType, entityID string) (*workflow.Instance, error)
	List(ctx context.Context, organizationID string, status *workflow.InstanceStatus) ([]*workflow.Instance, error)
	// ListDueActive returns every ACTIVE instance with a non-null due date,
	// across all organizations, for the SLA sweep.
	ListDueActive(ctx context.Context) ([]*workflow.Instance, error)
	// UpdateState writes the instance's mutable fields where the stored
	// revision equals expectedRevision, bumping the revision by one.
	UpdateState(ctx context.Context, inst *workflow.Instance, expectedRevision int64) error
	// UpdateSlaStatus writes only the SLA status. The sweep and the engine
	// are eventually consistent, so no revision guard is applied here.
	UpdateSlaStatus(ctx context.Context, id string, status workflow.SlaStatus) error
	CountActiveByTemplate(ctx context.Context, templateID string, version int) (int, error)
	// CountByTemplate counts instances of any status bound to the template,
	// for the delete guard.
	CountByTemplate(ctx context.Context, templateID string) (int, error)
}
