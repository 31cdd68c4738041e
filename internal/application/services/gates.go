package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/ports"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/expression"
)

// GateRegistry dispatches gate evaluation to the evaluator registered for
// each gate type. Unknown gate types fail closed.
type GateRegistry struct {
	evaluators map[workflow.GateType]ports.GateEvaluator
}

// NewGateRegistry creates a registry with the four built-in evaluators
func NewGateRegistry(engine *expression.Engine) *GateRegistry {
	return &GateRegistry{
		evaluators: map[workflow.GateType]ports.GateEvaluator{
			workflow.GateRequiredFields: &RequiredFieldsEvaluator{},
			workflow.GateApproval:       &ApprovalEvaluator{},
			workflow.GateCondition:      &ConditionEvaluator{engine: engine},
			workflow.GateMinimumTime:    &MinimumTimeEvaluator{},
		},
	}
}

// Register adds or replaces the evaluator for a gate type
func (r *GateRegistry) Register(gateType workflow.GateType, evaluator ports.GateEvaluator) {
	r.evaluators[gateType] = evaluator
}

// Evaluate runs every gate on the stage in declaration order and returns the
// first failure. An evaluator error counts as a failure with the error text
// as message, so a broken gate can never wave a transition through.
func (r *GateRegistry) Evaluate(ctx context.Context, gates []workflow.Gate, input ports.GateInput) ports.GateResult {
	for _, gate := range gates {
		evaluator, ok := r.evaluators[gate.Type]
		if !ok {
			return ports.GateResult{Passed: false, Message: fmt.Sprintf("no evaluator registered for gate type '%s'", gate.Type)}
		}
		result, err := evaluator.Evaluate(ctx, gate, input)
		if err != nil {
			return ports.GateResult{Passed: false, Message: fmt.Sprintf("gate '%s' evaluation failed: %v", gate.Type, err)}
		}
		if !result.Passed {
			if gate.Message != "" {
				result.Message = gate.Message
			}
			return result
		}
	}
	return ports.GateResult{Passed: true}
}

// RequiredFieldsEvaluator checks that the listed entity fields are populated
type RequiredFieldsEvaluator struct{}

func (e *RequiredFieldsEvaluator) Evaluate(_ context.Context, gate workflow.Gate, input ports.GateInput) (ports.GateResult, error) {
	for _, field := range gate.Fields {
		value, ok := input.Entity[field]
		if !ok || value == nil || value == "" {
			return ports.GateResult{
				Passed:  false,
				Message: fmt.Sprintf("required field '%s' is not set", field),
			}, nil
		}
	}
	return ports.GateResult{Passed: true}, nil
}

// ApprovalEvaluator checks that the evaluation context records an approval
// for the required role. Approvals are recorded by the approval collaborator
// under the "approvals" context key as a list of role names.
type ApprovalEvaluator struct{}

func (e *ApprovalEvaluator) Evaluate(_ context.Context, gate workflow.Gate, input ports.GateInput) (ports.GateResult, error) {
	raw, ok := input.Context["approvals"]
	if ok {
		switch approvals := raw.(type) {
		case []string:
			for _, role := range approvals {
				if role == gate.ApproverRole {
					return ports.GateResult{Passed: true}, nil
				}
			}
		case []interface{}:
			for _, role := range approvals {
				if s, ok := role.(string); ok && s == gate.ApproverRole {
					return ports.GateResult{Passed: true}, nil
				}
			}
		}
	}
	return ports.GateResult{
		Passed:  false,
		Message: fmt.Sprintf("approval from role '%s' is required", gate.ApproverRole),
	}, nil
}

// ConditionEvaluator runs an expr-lang expression against the entity
// snapshot and evaluation context. The expression must yield a boolean.
type ConditionEvaluator struct {
	engine *expression.Engine
}

func (e *ConditionEvaluator) Evaluate(_ context.Context, gate workflow.Gate, input ports.GateInput) (ports.GateResult, error) {
	env := map[string]interface{}{
		"entity":  input.Entity,
		"context": input.Context,
	}
	if input.Instance != nil {
		env["instance"] = map[string]interface{}{
			"current_stage": input.Instance.CurrentStage,
			"status":        string(input.Instance.Status),
			"entity_type":   input.Instance.EntityType,
		}
	}

	passed, err := e.engine.EvaluateBool(gate.Expression, env)
	if err != nil {
		return ports.GateResult{}, err
	}
	if !passed {
		return ports.GateResult{
			Passed:  false,
			Message: fmt.Sprintf("condition '%s' not satisfied", gate.Expression),
		}, nil
	}
	return ports.GateResult{Passed: true}, nil
}

// MinimumTimeEvaluator requires the instance to have spent a minimum number
// of hours in its current stage.
type MinimumTimeEvaluator struct {
	// now is overridable in tests
	now func() time.Time
}

func (e *MinimumTimeEvaluator) Evaluate(_ context.Context, gate workflow.Gate, input ports.GateInput) (ports.GateResult, error) {
	nowFn := e.now
	if nowFn == nil {
		nowFn = time.Now
	}
	if input.Instance == nil {
		return ports.GateResult{}, fmt.Errorf("minimum_time gate requires an instance")
	}

	elapsed := nowFn().Sub(input.Instance.StageEnteredAt).Hours()
	if elapsed < gate.MinimumHours {
		return ports.GateResult{
			Passed: false,
			Message: fmt.Sprintf("stage requires %.1f hours, only %.1f elapsed",
				gate.MinimumHours, elapsed),
		}, nil
	}
	return ports.GateResult{Passed: true}, nil
}
