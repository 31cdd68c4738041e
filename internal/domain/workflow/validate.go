package workflow

import (
	"fmt"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/constants"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

// ValidateGraph checks the structural invariants of a template's stage and
// transition graph. Every violation rejects template creation or update:
//   - at least one stage, each with a unique non-empty id
//   - initialStage references a declared stage
//   - every transition's from (or the "*" wildcard) and to reference
//     declared stages
//   - gate declarations carry the fields their type requires
func ValidateGraph(stages []Stage, transitions []Transition, initialStage string) error {
	if len(stages) == 0 {
		return errors.NewValidationError("stages", "template must declare at least one stage")
	}

	stageIDs := make(map[string]bool, len(stages))
	for _, stage := range stages {
		if stage.ID == "" {
			return errors.NewValidationError("stages", "stage id must not be empty")
		}
		if stage.ID == constants.StageWildcard {
			return errors.NewValidationError("stages", "stage id '*' is reserved for wildcard transitions")
		}
		if stageIDs[stage.ID] {
			return errors.NewValidationError("stages", fmt.Sprintf("duplicate stage id '%s'", stage.ID))
		}
		stageIDs[stage.ID] = true

		for _, gate := range stage.Gates {
			if err := validateGate(stage.ID, gate); err != nil {
				return err
			}
		}
	}

	if initialStage == "" {
		return errors.NewValidationError("initial_stage", "initial stage is required")
	}
	if !stageIDs[initialStage] {
		return errors.NewValidationError("initial_stage", fmt.Sprintf("initial stage '%s' is not a declared stage", initialStage))
	}

	for _, tr := range transitions {
		if tr.From != constants.StageWildcard && !stageIDs[tr.From] {
			return errors.NewValidationError("transitions", fmt.Sprintf("transition from unknown stage '%s'", tr.From))
		}
		if !stageIDs[tr.To] {
			return errors.NewValidationError("transitions", fmt.Sprintf("transition to unknown stage '%s'", tr.To))
		}
	}

	return nil
}

func validateGate(stageID string, gate Gate) error {
	field := fmt.Sprintf("stages.%s.gates", stageID)
	switch gate.Type {
	case GateRequiredFields:
		if len(gate.Fields) == 0 {
			return errors.NewValidationError(field, "required_fields gate must list at least one field")
		}
	case GateApproval:
		if gate.ApproverRole == "" {
			return errors.NewValidationError(field, "approval gate must name an approver role")
		}
	case GateCondition:
		if gate.Expression == "" {
			return errors.NewValidationError(field, "condition gate must provide an expression")
		}
	case GateMinimumTime:
		if gate.MinimumHours <= 0 {
			return errors.NewValidationError(field, "minimum_time gate must specify positive hours")
		}
	default:
		return errors.NewValidationError(field, fmt.Sprintf("unknown gate type '%s'", gate.Type))
	}
	return nil
}
