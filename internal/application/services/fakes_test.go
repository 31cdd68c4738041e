package services

import (
	"context"
	"sort"
	"sync"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/events"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/ports"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

// fakeTemplateRepo is an in-memory ports.TemplateRepository
type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[string]*workflow.Template
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[string]*workflow.Template)}
}

func (r *fakeTemplateRepo) Insert(_ context.Context, tpl *workflow.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.templates {
		if existing.OrganizationID == tpl.OrganizationID && existing.Name == tpl.Name && existing.Version == tpl.Version {
			return errors.NewConflictError("WorkflowTemplate", "name", tpl.Name)
		}
	}
	clone := *tpl
	r.templates[tpl.ID] = &clone
	return nil
}

func (r *fakeTemplateRepo) Update(_ context.Context, tpl *workflow.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[tpl.ID]; !ok {
		return errors.NewNotFoundError("WorkflowTemplate", tpl.ID)
	}
	clone := *tpl
	r.templates[tpl.ID] = &clone
	return nil
}

func (r *fakeTemplateRepo) GetByID(_ context.Context, id string) (*workflow.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.templates[id]; ok {
		clone := *tpl
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeTemplateRepo) GetByVersion(_ context.Context, id string, version int) (*workflow.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.templates[id]; ok && tpl.Version == version {
		clone := *tpl
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeTemplateRepo) FindAll(_ context.Context, organizationID string, filter ports.TemplateFilter) ([]*workflow.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*workflow.Template
	for _, tpl := range r.templates {
		if tpl.OrganizationID != organizationID {
			continue
		}
		if filter.EntityType != nil && tpl.EntityType != *filter.EntityType {
			continue
		}
		if filter.ActiveOnly && !tpl.IsActive {
			continue
		}
		clone := *tpl
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Version < result[j].Version
	})
	return result, nil
}

func (r *fakeTemplateRepo) FindDefault(_ context.Context, organizationID, entityType string) (*workflow.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tpl := range r.templates {
		if tpl.OrganizationID == organizationID && tpl.EntityType == entityType && tpl.IsDefault && tpl.IsActive {
			clone := *tpl
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeTemplateRepo) UnsetDefault(_ context.Context, organizationID, entityType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tpl := range r.templates {
		if tpl.OrganizationID == organizationID && tpl.EntityType == entityType {
			tpl.IsDefault = false
		}
	}
	return nil
}

func (r *fakeTemplateRepo) ExistsByName(_ context.Context, organizationID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tpl := range r.templates {
		if tpl.OrganizationID == organizationID && tpl.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTemplateRepo) ListVersions(_ context.Context, rootID string) ([]*workflow.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.templates[rootID]
	if !ok {
		return nil, nil
	}
	for current.SourceTemplateID != nil {
		prev, ok := r.templates[*current.SourceTemplateID]
		if !ok {
			break
		}
		current = prev
	}
	versions := []*workflow.Template{current}
	for {
		var next *workflow.Template
		for _, tpl := range r.templates {
			if tpl.SourceTemplateID != nil && *tpl.SourceTemplateID == current.ID {
				next = tpl
				break
			}
		}
		if next == nil {
			break
		}
		versions = append(versions, next)
		current = next
	}
	result := make([]*workflow.Template, len(versions))
	for i, tpl := range versions {
		clone := *tpl
		result[i] = &clone
	}
	return result, nil
}

func (r *fakeTemplateRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.templates, id)
	return nil
}

// fakeInstanceRepo is an in-memory ports.InstanceRepository with the same
// revision-check semantics as the SQL implementation.
type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]*workflow.Instance
	// listErr simulates a sweep listing failure
	listErr error
	// slaErrFor makes UpdateSlaStatus fail for one instance id
	slaErrFor string
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[string]*workflow.Instance)}
}

func cloneInstance(inst *workflow.Instance) *workflow.Instance {
	clone := *inst
	clone.StepStates = make(map[string]workflow.StepState, len(inst.StepStates))
	for k, v := range inst.StepStates {
		clone.StepStates[k] = v
	}
	return &clone
}

func (r *fakeInstanceRepo) Insert(_ context.Context, inst *workflow.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.instances {
		if existing.OrganizationID == inst.OrganizationID &&
			existing.EntityType == inst.EntityType && existing.EntityID == inst.EntityID {
			return &errors.ConflictError{
				Resource: "WorkflowInstance",
				Message:  "entity already has a workflow instance",
			}
		}
	}
	r.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (r *fakeInstanceRepo) GetByID(_ context.Context, id string) (*workflow.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		return cloneInstance(inst), nil
	}
	return nil, nil
}

func (r *fakeInstanceRepo) GetByEntity(_ context.Context, organizationID, entityType, entityID string) (*workflow.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.OrganizationID == organizationID && inst.EntityType == entityType && inst.EntityID == entityID {
			return cloneInstance(inst), nil
		}
	}
	return nil, nil
}

func (r *fakeInstanceRepo) List(_ context.Context, organizationID string, status *workflow.InstanceStatus) ([]*workflow.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*workflow.Instance
	for _, inst := range r.instances {
		if inst.OrganizationID != organizationID {
			continue
		}
		if status != nil && inst.Status != *status {
			continue
		}
		result = append(result, cloneInstance(inst))
	}
	return result, nil
}

func (r *fakeInstanceRepo) ListDueActive(_ context.Context) ([]*workflow.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []*workflow.Instance
	for _, inst := range r.instances {
		if inst.Status == workflow.InstanceStatusActive && inst.DueDate != nil {
			result = append(result, cloneInstance(inst))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeInstanceRepo) UpdateState(_ context.Context, inst *workflow.Instance, expectedRevision int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.instances[inst.ID]
	if !ok || stored.Revision != expectedRevision {
		return errors.NewRevisionConflictError("WorkflowInstance", inst.ID, expectedRevision)
	}
	updated := cloneInstance(inst)
	updated.Revision = expectedRevision + 1
	r.instances[inst.ID] = updated
	inst.Revision = updated.Revision
	return nil
}

func (r *fakeInstanceRepo) UpdateSlaStatus(_ context.Context, id string, status workflow.SlaStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slaErrFor == id {
		return errors.NewInternalError("storage unavailable", nil)
	}
	if inst, ok := r.instances[id]; ok {
		inst.SlaStatus = status
	}
	return nil
}

func (r *fakeInstanceRepo) CountActiveByTemplate(_ context.Context, templateID string, version int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, inst := range r.instances {
		if inst.TemplateID == templateID && inst.TemplateVersion == version && inst.Status == workflow.InstanceStatusActive {
			count++
		}
	}
	return count, nil
}

func (r *fakeInstanceRepo) CountByTemplate(_ context.Context, templateID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, inst := range r.instances {
		if inst.TemplateID == templateID {
			count++
		}
	}
	return count, nil
}

// capturedEvent records one published event for assertions
type capturedEvent struct {
	Type    events.EventType
	Payload interface{}
}

// eventRecorder captures everything published through the bus
type eventRecorder struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (r *eventRecorder) Subscribe(_ events.EventType, _ ports.EventHandler) func() {
	return func() {}
}

func (r *eventRecorder) Publish(_ context.Context, eventType events.EventType, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, capturedEvent{Type: eventType, Payload: payload})
	return nil
}

func (r *eventRecorder) ofType(eventType events.EventType) []capturedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []capturedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
