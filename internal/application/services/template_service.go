package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/ports"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

// TemplateService owns workflow template CRUD, graph validation and the
// version lineage. Templates bound to active instances are never mutated in
// place: Update forks a new version row instead.
type TemplateService struct {
	templates ports.TemplateRepository
	instances ports.InstanceRepository
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(templates ports.TemplateRepository, instances ports.InstanceRepository) *TemplateService {
	return &TemplateService{templates: templates, instances: instances}
}

// TemplateUpdate is a partial update; nil fields are left unchanged
type TemplateUpdate struct {
	Name           *string
	Description    *string
	Stages         *[]workflow.Stage
	Transitions    *[]workflow.Transition
	InitialStage   *string
	DefaultSlaDays *int
	IsActive       *bool
	IsDefault      *bool
}

// touchesGraph reports whether the patch modifies the state-machine
// definition, which is what triggers re-validation and fork-on-update.
func (u *TemplateUpdate) touchesGraph() bool {
	return u.Stages != nil || u.Transitions != nil || u.InitialStage != nil
}

// Create validates and stores a new template at version 1. A template
// flagged default atomically displaces any existing default for the same
// (organization, entityType).
func (s *TemplateService) Create(ctx context.Context, tpl *workflow.Template) (*workflow.Template, error) {
	if tpl.OrganizationID == "" {
		return nil, errors.NewValidationError("organization_id", "organization is required")
	}
	if tpl.Name == "" {
		return nil, errors.NewValidationError("name", "template name is required")
	}
	if tpl.EntityType == "" {
		return nil, errors.NewValidationError("entity_type", "entity type is required")
	}
	if err := workflow.ValidateGraph(tpl.Stages, tpl.Transitions, tpl.InitialStage); err != nil {
		return nil, err
	}

	exists, err := s.templates.ExistsByName(ctx, tpl.OrganizationID, tpl.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.NewConflictError("WorkflowTemplate", "name", tpl.Name)
	}

	if tpl.IsDefault {
		if err := s.templates.UnsetDefault(ctx, tpl.OrganizationID, tpl.EntityType); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	tpl.ID = uuid.NewString()
	tpl.Version = 1
	tpl.IsActive = true
	tpl.SourceTemplateID = nil
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := s.templates.Insert(ctx, tpl); err != nil {
		return nil, err
	}

	log.Printf("✅ WorkflowTemplate created: %s '%s' v1 (%s)", tpl.ID, tpl.Name, tpl.EntityType)
	return tpl, nil
}

// Update applies a partial update. When the patch touches the graph and
// active instances are bound to the current version, the template is forked:
// the current row is deactivated and a new row with version+1 is inserted,
// leaving in-flight instances running against the old version. Callers must
// use the returned template, whose id/version may differ from the input.
func (s *TemplateService) Update(ctx context.Context, id string, patch TemplateUpdate) (*workflow.Template, error) {
	current, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NewNotFoundError("WorkflowTemplate", id)
	}

	merged := *current
	applyPatch(&merged, patch)

	if patch.touchesGraph() {
		if err := workflow.ValidateGraph(merged.Stages, merged.Transitions, merged.InitialStage); err != nil {
			return nil, err
		}
	}

	if patch.IsDefault != nil && *patch.IsDefault && !current.IsDefault {
		if err := s.templates.UnsetDefault(ctx, current.OrganizationID, current.EntityType); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()

	activeCount := 0
	if patch.touchesGraph() {
		activeCount, err = s.instances.CountActiveByTemplate(ctx, current.ID, current.Version)
		if err != nil {
			return nil, err
		}
	}

	if activeCount == 0 {
		merged.UpdatedAt = now
		if err := s.templates.Update(ctx, &merged); err != nil {
			return nil, err
		}
		log.Printf("✅ WorkflowTemplate updated in place: %s v%d", merged.ID, merged.Version)
		return &merged, nil
	}

	// Fork: active instances pin the current version, so it must stay
	// frozen. Deactivate it and insert the edited definition as version+1.
	current.IsActive = false
	current.IsDefault = false
	current.UpdatedAt = now
	if err := s.templates.Update(ctx, current); err != nil {
		return nil, err
	}

	fork := merged
	fork.ID = uuid.NewString()
	fork.Version = current.Version + 1
	sourceID := current.ID
	fork.SourceTemplateID = &sourceID
	fork.IsActive = true
	fork.CreatedAt = now
	fork.UpdatedAt = now

	if err := s.templates.Insert(ctx, &fork); err != nil {
		return nil, err
	}

	log.Printf("🔀 WorkflowTemplate forked: %s v%d -> %s v%d (%d active instances pinned)",
		current.ID, current.Version, fork.ID, fork.Version, activeCount)
	return &fork, nil
}

// GetByID returns a template or a NotFoundError
func (s *TemplateService) GetByID(ctx context.Context, id string) (*workflow.Template, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errors.NewNotFoundError("WorkflowTemplate", id)
	}
	return tpl, nil
}

// FindAll lists templates for an organization, optionally filtered by entity
// type and active flag.
func (s *TemplateService) FindAll(ctx context.Context, organizationID string, filter ports.TemplateFilter) ([]*workflow.Template, error) {
	return s.templates.FindAll(ctx, organizationID, filter)
}

// FindDefault returns the organization's default template for an entity
// type, or a NotFoundError when none is configured.
func (s *TemplateService) FindDefault(ctx context.Context, organizationID, entityType string) (*workflow.Template, error) {
	tpl, err := s.templates.FindDefault(ctx, organizationID, entityType)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errors.NewNotFoundError("WorkflowTemplate", "default for "+entityType)
	}
	return tpl, nil
}

// ListVersions returns the full version lineage starting from any template
// in the chain, oldest first.
func (s *TemplateService) ListVersions(ctx context.Context, rootID string) ([]*workflow.Template, error) {
	versions, err := s.templates.ListVersions(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, errors.NewNotFoundError("WorkflowTemplate", rootID)
	}
	return versions, nil
}

// Delete removes a template. Any instance referencing it, of any status,
// blocks deletion; deactivation is the only retirement path for templates
// with history.
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if tpl == nil {
		return errors.NewNotFoundError("WorkflowTemplate", id)
	}

	count, err := s.instances.CountByTemplate(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &errors.ConflictError{
			Resource: "WorkflowTemplate",
			Message:  "template has workflow instances and cannot be deleted; deactivate it instead",
		}
	}

	if err := s.templates.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("🗑️ WorkflowTemplate deleted: %s '%s'", tpl.ID, tpl.Name)
	return nil
}

func applyPatch(tpl *workflow.Template, patch TemplateUpdate) {
	if patch.Name != nil {
		tpl.Name = *patch.Name
	}
	if patch.Description != nil {
		tpl.Description = patch.Description
	}
	if patch.Stages != nil {
		tpl.Stages = *patch.Stages
	}
	if patch.Transitions != nil {
		tpl.Transitions = *patch.Transitions
	}
	if patch.InitialStage != nil {
		tpl.InitialStage = *patch.InitialStage
	}
	if patch.DefaultSlaDays != nil {
		tpl.DefaultSlaDays = patch.DefaultSlaDays
	}
	if patch.IsActive != nil {
		tpl.IsActive = *patch.IsActive
	}
	if patch.IsDefault != nil {
		tpl.IsDefault = *patch.IsDefault
	}
}
