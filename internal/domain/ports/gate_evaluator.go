package ports

import (
	"context"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
)

// GateInput bundles everything a gate evaluator may inspect: the instance,
// a snapshot of the business entity supplied by the caller, and free-form
// context (e.g. recorded approvals).
type GateInput struct {
	Instance *workflow.Instance
	Entity   map[string]interface{}
	Context  map[string]interface{}
}

// GateResult is the outcome of evaluating a single gate
type GateResult struct {
	Passed  bool
	Message string
}

// GateEvaluator evaluates one gate type. New gate types plug in without
// touching the transition algorithm.
type GateEvaluator interface {
	Evaluate(ctx context.Context, gate workflow.Gate, input GateInput) (GateResult, error)
}
