package workflow

import (
	"time"
)

// InstanceStatus is the lifecycle status of a workflow instance
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "ACTIVE"
	InstanceStatusCompleted InstanceStatus = "COMPLETED"
	InstanceStatusCancelled InstanceStatus = "CANCELLED"
	InstanceStatusPaused    InstanceStatus = "PAUSED"
)

// SlaStatus is the SLA compliance state maintained by the SLA tracker
type SlaStatus string

const (
	SlaOnTrack  SlaStatus = "on_track"
	SlaWarning  SlaStatus = "warning"
	SlaBreached SlaStatus = "breached"
	SlaCritical SlaStatus = "critical"
)

// slaRank orders SLA statuses by severity. The scheduler only emits events
// on a severity increase.
var slaRank = map[SlaStatus]int{
	SlaOnTrack:  0,
	SlaWarning:  1,
	SlaBreached: 2,
	SlaCritical: 3,
}

// Severity returns the numeric rank of an SLA status
func (s SlaStatus) Severity() int {
	return slaRank[s]
}

// StepStateCompleted is the status written to a stage's step state when the
// instance leaves it.
const StepStateCompleted = "completed"

// StepState records when and by whom an instance left a stage
type StepState struct {
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy *string    `json:"completed_by,omitempty"`
}

// Instance is one running (or finished) execution of a template bound to a
// business entity. TemplateID and TemplateVersion are pinned at creation and
// never change, so in-flight instances are unaffected by template forks.
// Revision is an optimistic-lock counter bumped on every mutation.
type Instance struct {
	ID              string         `json:"id"`
	OrganizationID  string         `json:"organization_id"`
	EntityType      string         `json:"entity_type"`
	EntityID        string         `json:"entity_id"`
	TemplateID      string         `json:"template_id"`
	TemplateVersion int            `json:"template_version"`
	CurrentStage    string         `json:"current_stage"`
	Status          InstanceStatus `json:"status"`
	Revision        int64          `json:"revision"`
	DueDate         *time.Time     `json:"due_date,omitempty"`
	SlaStatus       SlaStatus      `json:"sla_status"`
	// SlaStartedAt is when the current due date's clock began: instance
	// creation, or the stage entry that last recomputed the due date.
	SlaStartedAt   time.Time            `json:"sla_started_at"`
	StageEnteredAt time.Time            `json:"stage_entered_at"`
	StepStates     map[string]StepState `json:"step_states,omitempty"`
	Outcome        *string              `json:"outcome,omitempty"`
	StartedAt      time.Time            `json:"started_date"`
	CompletedAt    *time.Time           `json:"completed_date,omitempty"`
	CreatedBy      *string              `json:"created_by_id,omitempty"`
}

// IsTerminal reports whether the instance can no longer be mutated
func (i *Instance) IsTerminal() bool {
	return i.Status == InstanceStatusCompleted || i.Status == InstanceStatusCancelled
}
