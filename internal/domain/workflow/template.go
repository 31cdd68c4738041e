package workflow

import (
	"time"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/constants"
)

// GateType identifies the kind of precondition attached to a stage
type GateType string

const (
	GateRequiredFields GateType = "required_fields"
	GateApproval       GateType = "approval"
	GateCondition      GateType = "condition"
	GateMinimumTime    GateType = "minimum_time"
)

// Gate is a precondition that must pass before an instance may leave a
// stage. It is a tagged union: Type selects which of the remaining fields
// are meaningful.
type Gate struct {
	Type GateType `json:"type"`
	// required_fields: entity fields that must be populated
	Fields []string `json:"fields,omitempty"`
	// approval: role whose sign-off must be present in the evaluation context
	ApproverRole string `json:"approver_role,omitempty"`
	// condition: expr-lang expression evaluated against the entity snapshot
	Expression string `json:"expression,omitempty"`
	// minimum_time: hours the instance must have spent in the stage
	MinimumHours float64 `json:"minimum_hours,omitempty"`
	// Message overrides the default failure message
	Message string `json:"message,omitempty"`
}

// Stage is a named state in a template's state machine. Steps are
// informational checklist items; the engine does not track them.
type Stage struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Steps      []string `json:"steps,omitempty"`
	SlaDays    *int     `json:"sla_days,omitempty"`
	Gates      []Gate   `json:"gates,omitempty"`
	IsTerminal bool     `json:"is_terminal,omitempty"`
}

// ActionType identifies a declarative action attached to a transition.
// Actions are executed by collaborators (notification service, webhook
// dispatcher), never by the engine itself.
type ActionType string

const (
	ActionNotification ActionType = "notification"
	ActionFieldUpdate  ActionType = "field_update"
	ActionAssignment   ActionType = "assignment"
	ActionWebhook      ActionType = "webhook"
)

// TransitionAction is a declared side effect of taking a transition
type TransitionAction struct {
	Type   ActionType             `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// Transition is a legal edge between stages. From may be the wildcard "*",
// meaning the edge is usable from any current stage.
type Transition struct {
	From           string             `json:"from"`
	To             string             `json:"to"`
	Label          string             `json:"label,omitempty"`
	AllowedRoles   []string           `json:"allowed_roles,omitempty"`
	RequiresReason bool               `json:"requires_reason,omitempty"`
	Condition      string             `json:"condition,omitempty"`
	Actions        []TransitionAction `json:"actions,omitempty"`
}

// Template is a versioned workflow definition for one entity type.
// Once instances are actively bound to a version it is never mutated in
// place; edits fork a new row with version+1 (see TemplateService).
type Template struct {
	ID               string       `json:"id"`
	OrganizationID   string       `json:"organization_id"`
	Name             string       `json:"name"`
	EntityType       string       `json:"entity_type"`
	Version          int          `json:"version"`
	Description      *string      `json:"description,omitempty"`
	Stages           []Stage      `json:"stages"`
	Transitions      []Transition `json:"transitions"`
	InitialStage     string       `json:"initial_stage"`
	DefaultSlaDays   *int         `json:"default_sla_days,omitempty"`
	IsActive         bool         `json:"is_active"`
	IsDefault        bool         `json:"is_default"`
	SourceTemplateID *string      `json:"source_template_id,omitempty"`
	CreatedAt        time.Time    `json:"created_date"`
	UpdatedAt        time.Time    `json:"last_modified_date"`
}

// StageByID returns the stage with the given id, or nil
func (t *Template) StageByID(id string) *Stage {
	for i := range t.Stages {
		if t.Stages[i].ID == id {
			return &t.Stages[i]
		}
	}
	return nil
}

// FindTransition returns the first transition usable from the given current
// stage to the target stage, honoring the wildcard. Exact matches win over
// wildcard matches so a specific edge's metadata (label, reason flag,
// actions) takes precedence.
func (t *Template) FindTransition(from, to string) *Transition {
	var wildcard *Transition
	for i := range t.Transitions {
		tr := &t.Transitions[i]
		if tr.To != to {
			continue
		}
		if tr.From == from {
			return tr
		}
		if tr.From == constants.StageWildcard && wildcard == nil {
			wildcard = tr
		}
	}
	return wildcard
}

// TransitionsFrom returns every transition usable from the given stage,
// including wildcard edges. Duplicate targets are collapsed, exact edges
// first.
func (t *Template) TransitionsFrom(from string) []Transition {
	seen := make(map[string]bool)
	var result []Transition
	for _, tr := range t.Transitions {
		if tr.From == from && !seen[tr.To] {
			seen[tr.To] = true
			result = append(result, tr)
		}
	}
	for _, tr := range t.Transitions {
		if tr.From == constants.StageWildcard && tr.To != from && !seen[tr.To] {
			seen[tr.To] = true
			result = append(result, tr)
		}
	}
	return result
}

// SlaDaysForStage returns the stage's SLA override if set, falling back to
// the template default. Returns nil when neither is configured.
func (t *Template) SlaDaysForStage(stageID string) *int {
	if stage := t.StageByID(stageID); stage != nil && stage.SlaDays != nil {
		return stage.SlaDays
	}
	return t.DefaultSlaDays
}
