package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/events"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/ports"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
)

// SlaScheduler periodically re-evaluates the SLA status of every ACTIVE
// instance with a due date and raises sla.warning / sla.breached /
// sla.critical events on severity increases. Decreases (a later transition
// extended the due date) are persisted silently. The sweep is idempotent:
// an unchanged status emits nothing.
type SlaScheduler struct {
	instances ports.InstanceRepository
	publisher ports.EventPublisher
	config    SlaConfig
	schedule  cron.Schedule
	now       func() time.Time

	stopChan chan struct{}
	mu       sync.Mutex
	running  bool
	stopped  bool // Prevents double-close of stopChan
}

// NewSlaScheduler creates a scheduler sweeping on the given cron expression
// (standard 5-field syntax, e.g. "*/5 * * * *").
func NewSlaScheduler(instances ports.InstanceRepository, publisher ports.EventPublisher, config SlaConfig, cronExpr string) (*SlaScheduler, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, err
	}
	return &SlaScheduler{
		instances: instances,
		publisher: publisher,
		config:    config,
		schedule:  schedule,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins the scheduler background loop. Blocks until Stop is called;
// run it in a goroutine.
func (s *SlaScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Println("⏰ SLA scheduler starting...")

	// Run immediately on start
	s.RunSweep(context.Background())

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			s.RunSweep(context.Background())
		case <-s.stopChan:
			timer.Stop()
			log.Println("⏰ SLA scheduler stopped")
			return
		}
	}
}

// Stop gracefully stops the scheduler
func (s *SlaScheduler) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	close(s.stopChan)
}

// RunSweep evaluates every due ACTIVE instance once. One instance's failure
// never aborts the sweep for the rest.
func (s *SlaScheduler) RunSweep(ctx context.Context) {
	instances, err := s.instances.ListDueActive(ctx)
	if err != nil {
		log.Printf("⚠️ SLA sweep: failed to list active instances: %v", err)
		return
	}

	for _, inst := range instances {
		if err := s.evaluateInstance(ctx, inst); err != nil {
			log.Printf("⚠️ SLA sweep: instance %s evaluation failed: %v", inst.ID, err)
		}
	}
}

func (s *SlaScheduler) evaluateInstance(ctx context.Context, inst *workflow.Instance) error {
	if inst.DueDate == nil {
		return nil
	}

	eval := EvaluateSla(s.config, inst.SlaStartedAt, *inst.DueDate, s.now().UTC())
	if eval.Status == inst.SlaStatus {
		return nil
	}

	if err := s.instances.UpdateSlaStatus(ctx, inst.ID, eval.Status); err != nil {
		return err
	}

	// Only severity increases notify; extensions quietly relax the status
	if eval.Status.Severity() > inst.SlaStatus.Severity() {
		eventType := slaEventFor(eval.Status)
		if eventType != "" {
			payload := events.SlaEventPayload{
				OrganizationID: inst.OrganizationID,
				InstanceID:     inst.ID,
				EntityType:     inst.EntityType,
				EntityID:       inst.EntityID,
				PreviousStatus: inst.SlaStatus,
				NewStatus:      eval.Status,
				DueDate:        *inst.DueDate,
				RemainingHours: eval.RemainingHours,
				Timestamp:      s.now().UTC(),
			}
			if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
				log.Printf("⚠️ Failed to publish %s event for instance %s: %v", eventType, inst.ID, err)
			}
		}
		log.Printf("⏰ SLA status for instance %s: %s -> %s (%.1fh remaining)",
			inst.ID, inst.SlaStatus, eval.Status, eval.RemainingHours)
	}

	return nil
}

func slaEventFor(status workflow.SlaStatus) events.EventType {
	switch status {
	case workflow.SlaWarning:
		return events.SlaWarning
	case workflow.SlaBreached:
		return events.SlaBreached
	case workflow.SlaCritical:
		return events.SlaCritical
	default:
		return ""
	}
}
