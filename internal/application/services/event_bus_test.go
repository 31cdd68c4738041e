package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/events"
)

func TestEventBusPublishReachesSubscribers(t *testing.T) {
	bus := NewEventBus()
	var received []interface{}

	bus.Subscribe(events.InstanceCreated, func(_ context.Context, payload interface{}) error {
		received = append(received, payload)
		return nil
	})

	err := bus.Publish(context.Background(), events.InstanceCreated, "payload-1")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "payload-1", received[0])

	// Other event types do not reach this subscriber
	err = bus.Publish(context.Background(), events.InstanceCompleted, "payload-2")
	require.NoError(t, err)
	assert.Len(t, received, 1)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	calls := 0

	for i := 0; i < 3; i++ {
		bus.Subscribe(events.SlaWarning, func(_ context.Context, _ interface{}) error {
			calls++
			return nil
		})
	}

	require.NoError(t, bus.Publish(context.Background(), events.SlaWarning, nil))
	assert.Equal(t, 3, calls)
}

func TestEventBusFirstErrorAborts(t *testing.T) {
	bus := NewEventBus()
	secondCalled := false

	bus.Subscribe(events.InstanceCancelled, func(_ context.Context, _ interface{}) error {
		return fmt.Errorf("sink down")
	})
	bus.Subscribe(events.InstanceCancelled, func(_ context.Context, _ interface{}) error {
		secondCalled = true
		return nil
	})

	err := bus.Publish(context.Background(), events.InstanceCancelled, nil)
	assert.EqualError(t, err, "sink down")
	assert.False(t, secondCalled)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	calls := 0

	unsubscribe := bus.Subscribe(events.InstancePaused, func(_ context.Context, _ interface{}) error {
		calls++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), events.InstancePaused, nil))
	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), events.InstancePaused, nil))

	assert.Equal(t, 1, calls)
}

func TestEventBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NoError(t, bus.Publish(context.Background(), events.InstanceResumed, nil))
}
