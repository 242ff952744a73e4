package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/careloop/pkg/channels/gochannel"
	"github.com/careloop/careloop/pkg/eventbus"
	"github.com/careloop/careloop/pkg/events"
	"github.com/careloop/careloop/pkg/models"
)

func TestWatermillEventBusRoundTrip(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(events.DomainTopic, pub, sub)

	received := make(chan *events.TriggerEvent, 1)

	err = bus.Handle(events.TriggerEventReceived, func(_ context.Context, event any) error {
		triggerEvent, ok := event.(*events.TriggerEvent)
		require.True(t, ok)

		received <- triggerEvent

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	sent := eventbus.Event(events.TriggerEvent{
		ID:          bus.GenerateID(),
		TenantID:    "clinic-1",
		TriggerType: models.TriggerAppointmentMissed,
		Payload: map[string]any{
			events.KeySubjectID: "patient-1",
		},
		OccurredAt: time.Now().UTC(),
	})

	require.NoError(t, bus.Publish(ctx, "clinic-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "clinic-1", got.TenantID)
		assert.Equal(t, models.TriggerAppointmentMissed, got.TriggerType)

		subjectID, ok := got.SubjectID()
		assert.True(t, ok)
		assert.Equal(t, "patient-1", subjectID)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger event was not delivered")
	}
}

func TestWatermillEventBusIgnoresUnhandledTypes(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(events.LifecycleTopic, pub, sub)

	received := make(chan any, 1)

	err = bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	started := events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, "clinic-1"),
		ExecutionID: "exec-1",
	}
	require.NoError(t, bus.Publish(ctx, "clinic-1", started))

	completed := events.ExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, "clinic-1"),
		ExecutionID: "exec-1",
	}
	require.NoError(t, bus.Publish(ctx, "clinic-1", completed))

	select {
	case event := <-received:
		got, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok)
		assert.Equal(t, "exec-1", got.ExecutionID)
	case <-time.After(2 * time.Second):
		t.Fatal("completed event was not delivered")
	}
}
