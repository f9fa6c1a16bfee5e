package messaging

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-gamification/internal/domain/shared"
)

func newSyncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(EventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
	})
}

func TestPublishReachesTypedHandler(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var received []shared.Event
	err := bus.Subscribe(shared.EventXPGained, func(event shared.Event) error {
		received = append(received, event)
		return nil
	})
	require.NoError(t, err)

	event := shared.NewXPGainedEvent("user-1", "go-basics", 120, 120, "lesson_complete")
	require.NoError(t, bus.Publish(event))

	require.Len(t, received, 1)
	assert.Equal(t, shared.EventXPGained, received[0].EventType())
	assert.Equal(t, "user-1", received[0].AggregateID())
}

func TestPublishSkipsOtherTypes(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	called := false
	require.NoError(t, bus.Subscribe(shared.EventStreakBroken, func(shared.Event) error {
		called = true
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStreakUpdatedEvent("user-1", 2, 5)))
	assert.False(t, called)
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	count := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewXPGainedEvent("u", "", 10, 10, "lesson_complete")))
	require.NoError(t, bus.Publish(shared.NewStreakUpdatedEvent("u", 1, 1)))
	require.NoError(t, bus.Publish(shared.NewAchievementUnlockedEvent("u", "first_lesson", "first_lesson", 25)))

	assert.Equal(t, 3, count)
}

func TestHandlerErrorDoesNotFailPublish(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error {
		return errors.New("consumer down")
	}))

	assert.NoError(t, bus.Publish(shared.NewXPGainedEvent("u", "", 10, 10, "lesson_complete")))

	snapshot := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.TotalPublished)
	assert.Less(t, snapshot.HandlerSuccessRate, 1.0)
}

func TestAsyncPublishCompletesOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(EventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 2,
		EnableMetrics:  true,
	})

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewXPGainedEvent("u", "", 1, 1, "lesson_complete")))
	}

	// Close ждёт завершения всех обработчиков.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 20, count)
}

func TestClosedBusRejectsOperations(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewStreakUpdatedEvent("u", 1, 1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close(), "повторное закрытие безопасно")
}
