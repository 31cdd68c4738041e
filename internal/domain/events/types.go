package events

import (
	"time"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
)

// EventType defines the type of event in the system
type EventType string

const (
	// Instance lifecycle events
	InstanceCreated      EventType = "instance.created"
	InstanceTransitioned EventType = "instance.transitioned"
	InstanceCompleted    EventType = "instance.completed"
	InstanceCancelled    EventType = "instance.cancelled"
	InstancePaused       EventType = "instance.paused"
	InstanceResumed      EventType = "instance.resumed"

	// SLA events raised by the scheduler sweep
	SlaWarning  EventType = "sla.warning"
	SlaBreached EventType = "sla.breached"
	SlaCritical EventType = "sla.critical"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// InstanceEventPayload is the payload carried by every instance lifecycle
// event. Operation-specific fields are nil when not applicable.
type InstanceEventPayload struct {
	OrganizationID  string                      `json:"organization_id"`
	ActorID         *string                     `json:"actor_id,omitempty"`
	InstanceID      string                      `json:"instance_id"`
	TemplateID      string                      `json:"template_id"`
	TemplateVersion int                         `json:"template_version"`
	EntityType      string                      `json:"entity_type"`
	EntityID        string                      `json:"entity_id"`
	PreviousStage   *string                     `json:"previous_stage,omitempty"`
	NewStage        *string                     `json:"new_stage,omitempty"`
	Reason          *string                     `json:"reason,omitempty"`
	Outcome         *string                     `json:"outcome,omitempty"`
	Actions         []workflow.TransitionAction `json:"actions,omitempty"`
	Timestamp       time.Time                   `json:"timestamp"`
}

// SlaEventPayload is the payload for sla.* events
type SlaEventPayload struct {
	OrganizationID string             `json:"organization_id"`
	InstanceID     string             `json:"instance_id"`
	EntityType     string             `json:"entity_type"`
	EntityID       string             `json:"entity_id"`
	PreviousStatus workflow.SlaStatus `json:"previous_status"`
	NewStatus      workflow.SlaStatus `json:"new_status"`
	DueDate        time.Time          `json:"due_date"`
	RemainingHours float64            `json:"remaining_hours"`
	Timestamp      time.Time          `json:"timestamp"`
}
