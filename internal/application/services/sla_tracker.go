package services

import (
	"time"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
)

// SlaConfig holds the organization-wide SLA policy applied by the tracker
// and the scheduler sweep.
type SlaConfig struct {
	// DefaultDays applies when a template defines no SLA at all
	DefaultDays int
	// WarningThresholdPercent is the elapsed percentage at which an
	// instance moves to warning
	WarningThresholdPercent float64
	// CriticalThresholdHours is how far past due an instance may be before
	// breached escalates to critical
	CriticalThresholdHours float64
}

// SlaEvaluation is the tracker's verdict for one instance at one moment
type SlaEvaluation struct {
	RemainingHours float64
	PercentUsed    float64
	Status         workflow.SlaStatus
}

// EvaluateSla computes the SLA state of an instance. Pure function: the same
// (config, startedAt, dueDate, now) always yields the same result, so it is
// unit-testable without storage and safe to re-run idempotently.
//
// Status ladder:
//
//	on_track  elapsed% below the warning threshold
//	warning   warning threshold reached, not yet due
//	breached  past due, within CriticalThresholdHours of the deadline
//	critical  past due beyond CriticalThresholdHours
func EvaluateSla(cfg SlaConfig, startedAt, dueDate, now time.Time) SlaEvaluation {
	remaining := dueDate.Sub(now).Hours()

	total := dueDate.Sub(startedAt)
	elapsed := now.Sub(startedAt)

	var percentUsed float64
	if total > 0 {
		percentUsed = float64(elapsed) / float64(total) * 100
	} else {
		// Degenerate window: due on or before start counts as fully used
		percentUsed = 100
	}

	eval := SlaEvaluation{
		RemainingHours: remaining,
		PercentUsed:    percentUsed,
	}

	switch {
	case percentUsed < cfg.WarningThresholdPercent:
		eval.Status = workflow.SlaOnTrack
	case percentUsed < 100:
		eval.Status = workflow.SlaWarning
	case -remaining <= cfg.CriticalThresholdHours:
		eval.Status = workflow.SlaBreached
	default:
		eval.Status = workflow.SlaCritical
	}

	return eval
}

// DueDateFromDays returns now + days as the SLA deadline, or nil when the
// template defines no SLA for the stage.
func DueDateFromDays(days *int, now time.Time) *time.Time {
	if days == nil {
		return nil
	}
	due := now.Add(time.Duration(*days) * 24 * time.Hour)
	return &due
}
