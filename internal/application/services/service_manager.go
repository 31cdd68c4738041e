package services

import (
	"database/sql"
	"log"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/infrastructure/persistence"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/expression"
)

// Config carries the tunables the service layer needs at construction time
type Config struct {
	Sla           SlaConfig
	SweepSchedule string
}

// ServiceManager wires repositories, the event bus and all services
// together. Handlers and the scheduler reach everything through it.
type ServiceManager struct {
	Events    *EventBus
	Templates *TemplateService
	Engine    *EngineService
	Scheduler *SlaScheduler
}

// NewServiceManager creates and wires all services
func NewServiceManager(db *sql.DB, cfg Config) (*ServiceManager, error) {
	templateRepo := persistence.NewTemplateRepository(db)
	instanceRepo := persistence.NewInstanceRepository(db)

	eventBus := NewEventBus()
	gates := NewGateRegistry(expression.NewEngine())

	scheduler, err := NewSlaScheduler(instanceRepo, eventBus, cfg.Sla, cfg.SweepSchedule)
	if err != nil {
		return nil, err
	}

	return &ServiceManager{
		Events:    eventBus,
		Templates: NewTemplateService(templateRepo, instanceRepo),
		Engine:    NewEngineService(templateRepo, instanceRepo, gates, eventBus),
		Scheduler: scheduler,
	}, nil
}

// StartScheduler launches the SLA sweep loop in the background
func (m *ServiceManager) StartScheduler() {
	go m.Scheduler.Start()
	log.Println("⏰ SLA scheduler started")
}

// StopScheduler stops the SLA sweep loop
func (m *ServiceManager) StopScheduler() {
	m.Scheduler.Stop()
}
