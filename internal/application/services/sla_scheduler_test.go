package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/events"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/workflow"
)

func newSchedulerFixture(t *testing.T) (*SlaScheduler, *fakeInstanceRepo, *eventRecorder) {
	t.Helper()
	instances := newFakeInstanceRepo()
	recorder := &eventRecorder{}
	scheduler, err := NewSlaScheduler(instances, recorder, slaTestConfig(), "*/5 * * * *")
	require.NoError(t, err)
	return scheduler, instances, recorder
}

func seedDueInstance(t *testing.T, repo *fakeInstanceRepo, id string, startedAt time.Time, dueIn time.Duration, status workflow.SlaStatus) {
	t.Helper()
	due := startedAt.Add(dueIn)
	require.NoError(t, repo.Insert(context.Background(), &workflow.Instance{
		ID:             id,
		OrganizationID: testOrg,
		EntityType:     "case",
		EntityID:       "case-" + id,
		CurrentStage:   "review",
		Status:         workflow.InstanceStatusActive,
		Revision:       1,
		DueDate:        &due,
		SlaStatus:      status,
		SlaStartedAt:   startedAt,
	}))
}

func TestSweepEmitsOnSeverityIncrease(t *testing.T) {
	scheduler, instances, recorder := newSchedulerFixture(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return start.Add(90 * time.Hour) }

	// 90 of 100 hours used: on_track -> warning
	seedDueInstance(t, instances, "inst-1", start, 100*time.Hour, workflow.SlaOnTrack)

	scheduler.RunSweep(context.Background())

	warnings := recorder.ofType(events.SlaWarning)
	require.Len(t, warnings, 1)
	payload := warnings[0].Payload.(events.SlaEventPayload)
	assert.Equal(t, "inst-1", payload.InstanceID)
	assert.Equal(t, workflow.SlaOnTrack, payload.PreviousStatus)
	assert.Equal(t, workflow.SlaWarning, payload.NewStatus)
	assert.InDelta(t, 10.0, payload.RemainingHours, 0.001)

	stored, _ := instances.GetByID(context.Background(), "inst-1")
	assert.Equal(t, workflow.SlaWarning, stored.SlaStatus)
}

func TestSweepIsIdempotent(t *testing.T) {
	scheduler, instances, recorder := newSchedulerFixture(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return start.Add(90 * time.Hour) }

	seedDueInstance(t, instances, "inst-1", start, 100*time.Hour, workflow.SlaOnTrack)

	scheduler.RunSweep(context.Background())
	require.Len(t, recorder.ofType(events.SlaWarning), 1)

	// Nothing changed between sweeps, so the second run is silent
	recorder.reset()
	scheduler.RunSweep(context.Background())
	assert.Empty(t, recorder.events)
}

func TestSweepEscalatesThroughLadder(t *testing.T) {
	scheduler, instances, recorder := newSchedulerFixture(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := 100 * time.Hour

	seedDueInstance(t, instances, "inst-1", start, due, workflow.SlaOnTrack)

	steps := []struct {
		at   time.Duration
		want events.EventType
	}{
		{90 * time.Hour, events.SlaWarning},
		{110 * time.Hour, events.SlaBreached},
		{130 * time.Hour, events.SlaCritical},
	}
	for _, step := range steps {
		now := start.Add(step.at)
		scheduler.now = func() time.Time { return now }
		recorder.reset()
		scheduler.RunSweep(context.Background())
		assert.Len(t, recorder.ofType(step.want), 1, "at +%v", step.at)
	}
}

func TestSweepPersistsDecreaseSilently(t *testing.T) {
	scheduler, instances, recorder := newSchedulerFixture(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return start.Add(10 * time.Hour) }

	// A transition extended the due date after the instance had breached
	seedDueInstance(t, instances, "inst-1", start, 100*time.Hour, workflow.SlaBreached)

	scheduler.RunSweep(context.Background())

	assert.Empty(t, recorder.events)
	stored, _ := instances.GetByID(context.Background(), "inst-1")
	assert.Equal(t, workflow.SlaOnTrack, stored.SlaStatus)
}

func TestSweepIsolatesInstanceFailures(t *testing.T) {
	scheduler, instances, recorder := newSchedulerFixture(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return start.Add(90 * time.Hour) }

	seedDueInstance(t, instances, "inst-1", start, 100*time.Hour, workflow.SlaOnTrack)
	seedDueInstance(t, instances, "inst-2", start, 100*time.Hour, workflow.SlaOnTrack)
	instances.slaErrFor = "inst-1"

	scheduler.RunSweep(context.Background())

	// inst-1's storage failure must not stop inst-2's evaluation
	warnings := recorder.ofType(events.SlaWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "inst-2", warnings[0].Payload.(events.SlaEventPayload).InstanceID)
}

func TestSweepSkipsPausedInstances(t *testing.T) {
	scheduler, instances, recorder := newSchedulerFixture(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return start.Add(90 * time.Hour) }

	seedDueInstance(t, instances, "inst-1", start, 100*time.Hour, workflow.SlaOnTrack)
	paused, _ := instances.GetByID(context.Background(), "inst-1")
	paused.Status = workflow.InstanceStatusPaused
	require.NoError(t, instances.UpdateState(context.Background(), paused, paused.Revision))

	scheduler.RunSweep(context.Background())
	assert.Empty(t, recorder.events)
}

func TestSweepSurvivesListFailure(t *testing.T) {
	scheduler, instances, recorder := newSchedulerFixture(t)
	instances.listErr = fmt.Errorf("connection refused")

	scheduler.RunSweep(context.Background())
	assert.Empty(t, recorder.events)
}

func TestNewSlaSchedulerRejectsBadCron(t *testing.T) {
	_, err := NewSlaScheduler(newFakeInstanceRepo(), &eventRecorder{}, slaTestConfig(), "not a cron expr")
	assert.Error(t, err)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	scheduler, _, _ := newSchedulerFixture(t)

	done := make(chan struct{})
	go func() {
		scheduler.Start()
		close(done)
	}()

	// Give the immediate sweep a moment, then stop twice
	time.Sleep(10 * time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
