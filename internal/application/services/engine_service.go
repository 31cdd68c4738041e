package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/events"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/ports"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

// TransitionResult reports the outcome of a stage or status change attempt.
// Business-rule failures (disallowed edge, failed gate, inactive instance)
// are reported here with Success=false, never as a Go error, so UI-driven
// callers can render a specific message without exception control flow.
type TransitionResult struct {
	Success       bool                        `json:"success"`
	PreviousStage string                      `json:"previous_stage,omitempty"`
	NewStage      string                      `json:"new_stage,omitempty"`
	Error         string                      `json:"error,omitempty"`
	Actions       []workflow.TransitionAction `json:"actions,omitempty"`
}

func failedResult(format string, args ...interface{}) *TransitionResult {
	return &TransitionResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// TransitionRequest carries the caller's inputs for a stage transition
type TransitionRequest struct {
	ToStage string
	ActorID *string
	Reason  *string
	// SkipGateValidation bypasses gate evaluation (administrative moves)
	SkipGateValidation bool
	// Entity is the caller-supplied snapshot of the business entity, used
	// by gate evaluators; the engine itself never loads entities.
	Entity map[string]interface{}
	// Context holds collaborator-recorded facts such as approvals
	Context map[string]interface{}
	// ExpectedRevision enables optimistic locking across the caller's own
	// read-modify-write cycle; nil checks only against the engine's read.
	ExpectedRevision *int64
}

// AllowedTransition is one edge reachable from an instance's current stage
type AllowedTransition struct {
	To    string `json:"to"`
	Label string `json:"label"`
}

// EngineService executes workflow instances against their pinned template
// version: it creates, transitions, completes, pauses, resumes and cancels
// instances, and emits lifecycle events for the audit and notification
// subsystems. Event emission is fire-and-forget: a sink failure is logged
// and never fails the state change that triggered it.
type EngineService struct {
	templates ports.TemplateRepository
	instances ports.InstanceRepository
	gates     *GateRegistry
	publisher ports.EventPublisher
	machine   *workflow.StatusMachine
	now       func() time.Time
}

// NewEngineService creates a new EngineService
func NewEngineService(
	templates ports.TemplateRepository,
	instances ports.InstanceRepository,
	gates *GateRegistry,
	publisher ports.EventPublisher,
) *EngineService {
	return &EngineService{
		templates: templates,
		instances: instances,
		gates:     gates,
		publisher: publisher,
		machine:   workflow.NewStatusMachine(),
		now:       time.Now,
	}
}

// Start creates an ACTIVE instance for an entity. The template is the
// explicit one when templateID is given (it must be active), otherwise the
// organization's default for the entity type. The (templateID, version) pair
// is pinned on the instance and never changes afterwards. A second start for
// the same entity fails with a conflict via the store's unique key.
func (s *EngineService) Start(ctx context.Context, organizationID, entityType, entityID string, templateID *string, actorID *string) (*workflow.Instance, error) {
	if organizationID == "" || entityType == "" || entityID == "" {
		return nil, errors.NewValidationError("entity", "organization, entity type and entity id are required")
	}

	var tpl *workflow.Template
	var err error
	if templateID != nil && *templateID != "" {
		tpl, err = s.templates.GetByID(ctx, *templateID)
		if err != nil {
			return nil, err
		}
		if tpl == nil || !tpl.IsActive {
			return nil, errors.NewNotFoundError("WorkflowTemplate", *templateID)
		}
	} else {
		tpl, err = s.templates.FindDefault(ctx, organizationID, entityType)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			return nil, errors.NewNotFoundError("WorkflowTemplate", "default for "+entityType)
		}
	}

	now := s.now().UTC()
	inst := &workflow.Instance{
		ID:              uuid.NewString(),
		OrganizationID:  organizationID,
		EntityType:      entityType,
		EntityID:        entityID,
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		CurrentStage:    tpl.InitialStage,
		Status:          workflow.InstanceStatusActive,
		Revision:        1,
		DueDate:         DueDateFromDays(tpl.SlaDaysForStage(tpl.InitialStage), now),
		SlaStatus:       workflow.SlaOnTrack,
		SlaStartedAt:    now,
		StageEnteredAt:  now,
		StepStates:      make(map[string]workflow.StepState),
		StartedAt:       now,
		CreatedBy:       actorID,
	}

	if err := s.instances.Insert(ctx, inst); err != nil {
		return nil, err
	}

	initialStage := tpl.InitialStage
	s.emit(ctx, events.InstanceCreated, events.InstanceEventPayload{
		OrganizationID:  organizationID,
		ActorID:         actorID,
		InstanceID:      inst.ID,
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		EntityType:      entityType,
		EntityID:        entityID,
		NewStage:        &initialStage,
		Timestamp:       now,
	})

	log.Printf("✅ WorkflowInstance started: %s for %s/%s on template %s v%d",
		inst.ID, entityType, entityID, tpl.ID, tpl.Version)
	return inst, nil
}

// Transition moves an instance to another stage. The edge must be declared
// in the pinned template version (exact or wildcard), the instance must be
// ACTIVE, and the current stage's gates must pass unless skipped. On success
// the previous stage's step state is recorded as completed and the due date
// is recomputed when the target stage declares an SLA override.
//
// A Go error is returned only for infrastructure failures and optimistic
// lock conflicts; everything business-rule shaped lands in the result.
func (s *EngineService) Transition(ctx context.Context, instanceID string, req TransitionRequest) (*TransitionResult, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return failedResult("workflow instance '%s' not found", instanceID), nil
	}
	if inst.Status != workflow.InstanceStatusActive {
		return failedResult("instance is %s; only ACTIVE instances can transition", inst.Status), nil
	}
	if req.ExpectedRevision != nil && *req.ExpectedRevision != inst.Revision {
		return nil, errors.NewRevisionConflictError("WorkflowInstance", inst.ID, *req.ExpectedRevision)
	}

	// Always the pinned version, never the template's current version
	tpl, err := s.templates.GetByVersion(ctx, inst.TemplateID, inst.TemplateVersion)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errors.NewNotFoundError("WorkflowTemplate",
			fmt.Sprintf("%s v%d", inst.TemplateID, inst.TemplateVersion))
	}

	if tpl.StageByID(req.ToStage) == nil {
		return failedResult("stage '%s' does not exist in template version %d", req.ToStage, tpl.Version), nil
	}

	edge := tpl.FindTransition(inst.CurrentStage, req.ToStage)
	if edge == nil {
		return failedResult("transition from '%s' to '%s' is not allowed", inst.CurrentStage, req.ToStage), nil
	}
	if edge.RequiresReason && (req.Reason == nil || *req.Reason == "") {
		return failedResult("transition from '%s' to '%s' requires a reason", inst.CurrentStage, req.ToStage), nil
	}

	input := ports.GateInput{Instance: inst, Entity: req.Entity, Context: req.Context}

	if !req.SkipGateValidation {
		if stage := tpl.StageByID(inst.CurrentStage); stage != nil && len(stage.Gates) > 0 {
			if result := s.gates.Evaluate(ctx, stage.Gates, input); !result.Passed {
				return failedResult("gate failed: %s", result.Message), nil
			}
		}
	}

	if edge.Condition != "" {
		conditionGate := workflow.Gate{Type: workflow.GateCondition, Expression: edge.Condition}
		if result := s.gates.Evaluate(ctx, []workflow.Gate{conditionGate}, input); !result.Passed {
			return failedResult("transition condition failed: %s", result.Message), nil
		}
	}

	now := s.now().UTC()
	previousStage := inst.CurrentStage

	if inst.StepStates == nil {
		inst.StepStates = make(map[string]workflow.StepState)
	}
	inst.StepStates[previousStage] = workflow.StepState{
		Status:      workflow.StepStateCompleted,
		CompletedAt: &now,
		CompletedBy: req.ActorID,
	}
	inst.CurrentStage = req.ToStage
	inst.StageEnteredAt = now
	if target := tpl.StageByID(req.ToStage); target != nil && target.SlaDays != nil {
		inst.DueDate = DueDateFromDays(target.SlaDays, now)
		inst.SlaStartedAt = now
	}

	readRevision := inst.Revision
	if err := s.instances.UpdateState(ctx, inst, readRevision); err != nil {
		return nil, err
	}

	s.emit(ctx, events.InstanceTransitioned, events.InstanceEventPayload{
		OrganizationID:  inst.OrganizationID,
		ActorID:         req.ActorID,
		InstanceID:      inst.ID,
		TemplateID:      inst.TemplateID,
		TemplateVersion: inst.TemplateVersion,
		EntityType:      inst.EntityType,
		EntityID:        inst.EntityID,
		PreviousStage:   &previousStage,
		NewStage:        &inst.CurrentStage,
		Reason:          req.Reason,
		Actions:         edge.Actions,
		Timestamp:       now,
	})

	log.Printf("➡️ WorkflowInstance %s transitioned: %s -> %s", inst.ID, previousStage, inst.CurrentStage)
	return &TransitionResult{
		Success:       true,
		PreviousStage: previousStage,
		NewStage:      inst.CurrentStage,
		Actions:       edge.Actions,
	}, nil
}

// Complete finishes an instance and records its outcome. Only ACTIVE
// instances may complete; illegal status moves are reported in the result,
// same convention as stage transitions.
func (s *EngineService) Complete(ctx context.Context, instanceID string, outcome, actorID *string) (*TransitionResult, error) {
	return s.applyStatusAction(ctx, instanceID, workflow.ActionComplete, events.InstanceCompleted, actorID, nil,
		func(inst *workflow.Instance, now time.Time) {
			inst.Outcome = outcome
			inst.CompletedAt = &now
		},
		func(payload *events.InstanceEventPayload) {
			payload.Outcome = outcome
		})
}

// Cancel aborts an instance from ACTIVE or PAUSED
func (s *EngineService) Cancel(ctx context.Context, instanceID string, actorID, reason *string) (*TransitionResult, error) {
	return s.applyStatusAction(ctx, instanceID, workflow.ActionCancel, events.InstanceCancelled, actorID, reason, nil, nil)
}

// Pause suspends an ACTIVE instance
func (s *EngineService) Pause(ctx context.Context, instanceID string, actorID, reason *string) (*TransitionResult, error) {
	return s.applyStatusAction(ctx, instanceID, workflow.ActionPause, events.InstancePaused, actorID, reason, nil, nil)
}

// Resume reactivates a PAUSED instance. Unlike the result-style operations,
// resuming a non-paused instance is treated as a caller programming error
// and returns a typed error.
func (s *EngineService) Resume(ctx context.Context, instanceID string, actorID *string) (*workflow.Instance, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.NewNotFoundError("WorkflowInstance", instanceID)
	}
	if inst.Status != workflow.InstanceStatusPaused {
		return nil, errors.NewValidationError("status",
			fmt.Sprintf("cannot resume instance in status %s", inst.Status))
	}

	inst.Status = workflow.InstanceStatusActive
	readRevision := inst.Revision
	if err := s.instances.UpdateState(ctx, inst, readRevision); err != nil {
		return nil, err
	}

	s.emit(ctx, events.InstanceResumed, s.payloadFor(inst, actorID))
	log.Printf("▶️ WorkflowInstance resumed: %s at stage %s", inst.ID, inst.CurrentStage)
	return inst, nil
}

// GetInstance returns an instance by id or a NotFoundError
func (s *EngineService) GetInstance(ctx context.Context, instanceID string) (*workflow.Instance, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.NewNotFoundError("WorkflowInstance", instanceID)
	}
	return inst, nil
}

// GetInstanceByEntity returns the instance attached to an entity, or a
// NotFoundError when the entity has no workflow.
func (s *EngineService) GetInstanceByEntity(ctx context.Context, organizationID, entityType, entityID string) (*workflow.Instance, error) {
	inst, err := s.instances.GetByEntity(ctx, organizationID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.NewNotFoundError("WorkflowInstance", entityType+"/"+entityID)
	}
	return inst, nil
}

// ListInstances lists an organization's instances, optionally by status
func (s *EngineService) ListInstances(ctx context.Context, organizationID string, status *workflow.InstanceStatus) ([]*workflow.Instance, error) {
	return s.instances.List(ctx, organizationID, status)
}

// GetAllowedTransitions returns the stages reachable from the instance's
// current stage in its pinned template version. Non-ACTIVE instances have no
// allowed transitions.
func (s *EngineService) GetAllowedTransitions(ctx context.Context, instanceID string) ([]AllowedTransition, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.NewNotFoundError("WorkflowInstance", instanceID)
	}
	if inst.Status != workflow.InstanceStatusActive {
		return []AllowedTransition{}, nil
	}

	tpl, err := s.templates.GetByVersion(ctx, inst.TemplateID, inst.TemplateVersion)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, errors.NewNotFoundError("WorkflowTemplate",
			fmt.Sprintf("%s v%d", inst.TemplateID, inst.TemplateVersion))
	}

	edges := tpl.TransitionsFrom(inst.CurrentStage)
	allowed := make([]AllowedTransition, 0, len(edges))
	for _, edge := range edges {
		label := edge.Label
		if label == "" {
			if stage := tpl.StageByID(edge.To); stage != nil {
				label = stage.Name
			}
		}
		allowed = append(allowed, AllowedTransition{To: edge.To, Label: label})
	}
	return allowed, nil
}

// applyStatusAction is the shared path for Complete/Cancel/Pause: validate
// the status move against the machine, mutate, persist optimistically, emit.
func (s *EngineService) applyStatusAction(
	ctx context.Context,
	instanceID string,
	action workflow.StatusAction,
	eventType events.EventType,
	actorID, reason *string,
	mutate func(inst *workflow.Instance, now time.Time),
	decorate func(payload *events.InstanceEventPayload),
) (*TransitionResult, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return failedResult("workflow instance '%s' not found", instanceID), nil
	}

	next, err := s.machine.Transition(inst.Status, action)
	if err != nil {
		return failedResult("%v", err), nil
	}

	now := s.now().UTC()
	inst.Status = next
	if mutate != nil {
		mutate(inst, now)
	}

	readRevision := inst.Revision
	if err := s.instances.UpdateState(ctx, inst, readRevision); err != nil {
		return nil, err
	}

	payload := s.payloadFor(inst, actorID)
	payload.Reason = reason
	if decorate != nil {
		decorate(&payload)
	}
	s.emit(ctx, eventType, payload)

	log.Printf("🔁 WorkflowInstance %s: %s -> status %s", inst.ID, action, inst.Status)
	return &TransitionResult{
		Success:       true,
		PreviousStage: inst.CurrentStage,
		NewStage:      inst.CurrentStage,
	}, nil
}

func (s *EngineService) payloadFor(inst *workflow.Instance, actorID *string) events.InstanceEventPayload {
	return events.InstanceEventPayload{
		OrganizationID:  inst.OrganizationID,
		ActorID:         actorID,
		InstanceID:      inst.ID,
		TemplateID:      inst.TemplateID,
		TemplateVersion: inst.TemplateVersion,
		EntityType:      inst.EntityType,
		EntityID:        inst.EntityID,
		Outcome:         inst.Outcome,
		Timestamp:       s.now().UTC(),
	}
}

// emit publishes fire-and-forget: sink failures never fail the operation
func (s *EngineService) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		log.Printf("⚠️ Failed to publish %s event: %v", eventType, err)
	}
}
