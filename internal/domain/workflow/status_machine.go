package workflow

import (
	"fmt"
)

// StatusAction is an engine operation that changes an instance's status
type StatusAction string

const (
	// ActionComplete marks the instance as finished
	ActionComplete StatusAction = "Complete"
	// ActionCancel aborts the instance
	ActionCancel StatusAction = "Cancel"
	// ActionPause suspends the instance
	ActionPause StatusAction = "Pause"
	// ActionResume reactivates a paused instance
	ActionResume StatusAction = "Resume"
)

// StatusMachine enforces valid status transitions for workflow instances.
// Invalid transitions return an error (fail-fast approach).
type StatusMachine struct {
	// transitions maps (current status, action) -> next status
	transitions map[statusActionKey]InstanceStatus
}

type statusActionKey struct {
	status InstanceStatus
	action StatusAction
}

// NewStatusMachine creates a status machine with the instance lifecycle
// rules. State diagram:
//
//	       [ACTIVE] ◄──Resume──┐
//	      /    │    \          │
//	Complete Cancel  Pause     │
//	    /      │       \       │
//	   ▼       ▼        ▼      │
//	[COMPLETED][CANCELLED][PAUSED]
//	           ▲               │
//	           └────Cancel─────┘
//
// COMPLETED and CANCELLED are terminal: no action leaves them.
func NewStatusMachine() *StatusMachine {
	sm := &StatusMachine{
		transitions: make(map[statusActionKey]InstanceStatus),
	}

	sm.addTransition(InstanceStatusActive, ActionComplete, InstanceStatusCompleted)
	sm.addTransition(InstanceStatusActive, ActionCancel, InstanceStatusCancelled)
	sm.addTransition(InstanceStatusActive, ActionPause, InstanceStatusPaused)
	sm.addTransition(InstanceStatusPaused, ActionResume, InstanceStatusActive)
	sm.addTransition(InstanceStatusPaused, ActionCancel, InstanceStatusCancelled)

	return sm
}

func (sm *StatusMachine) addTransition(from InstanceStatus, via StatusAction, to InstanceStatus) {
	key := statusActionKey{status: from, action: via}
	sm.transitions[key] = to
}

// Transition attempts to move from the current status using the given
// action. Returns the new status or an error if the move is invalid.
func (sm *StatusMachine) Transition(current InstanceStatus, action StatusAction) (InstanceStatus, error) {
	key := statusActionKey{status: current, action: action}
	next, ok := sm.transitions[key]
	if !ok {
		return current, fmt.Errorf("invalid status transition: cannot %s from %s", action, current)
	}
	return next, nil
}

// CanTransition checks if an action is valid without performing it
func (sm *StatusMachine) CanTransition(current InstanceStatus, action StatusAction) bool {
	key := statusActionKey{status: current, action: action}
	_, ok := sm.transitions[key]
	return ok
}

// IsTerminal returns true if no action can leave the given status
func (sm *StatusMachine) IsTerminal(status InstanceStatus) bool {
	return status == InstanceStatusCompleted || status == InstanceStatusCancelled
}
