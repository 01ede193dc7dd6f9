package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater/conveyor/pkg/channels/gochannel"
	"github.com/tidewater/conveyor/pkg/eventbus"
	"github.com/tidewater/conveyor/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		require.NoError(t, bus.Close())
	})

	return bus
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	var (
		mu       sync.Mutex
		received []*events.RunCompleted
	)

	err := bus.Handle(events.RunCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.RunCompleted)
		if !ok {
			t.Errorf("unexpected event type %T", event)

			return nil
		}

		mu.Lock()
		received = append(received, completed)
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	published := events.RunCompleted{
		BaseEvent:       events.NewBaseEvent(events.RunCompletedEvent, "wf-1"),
		RunID:           "run-1",
		DurationMs:      1200,
		ActionsExecuted: 3,
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", published))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, received, 1)
	assert.Equal(t, "run-1", received[0].RunID)
	assert.Equal(t, int64(1200), received[0].DurationMs)
	assert.Equal(t, 3, received[0].ActionsExecuted)
	assert.Equal(t, "wf-1", received[0].WorkflowID)
}

func TestUnhandledEventTypeIsAcked(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	var (
		mu    sync.Mutex
		calls int
	)

	err := bus.Handle(events.RunFailedEvent, func(_ context.Context, _ any) error {
		mu.Lock()
		calls++
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler is registered for completions; the message must be dropped
	// without blocking later deliveries.
	completed := events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, "wf-1"),
		RunID:     "run-1",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", completed))

	failed := events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, "wf-1"),
		RunID:     "run-2",
		Error:     "boom",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", failed))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return calls == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGenerateIDIsUnique(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
