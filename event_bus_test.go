package services_test

import (
	"context"
	"errors"
	"testing"

	services "github.com/pewpi/go-services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *services.EventBus {
	t.Helper()
	bus := services.NewEventBus()
	require.NoError(t, bus.Initialize())
	return bus
}

// record returns a handler appending label to the shared trace slice.
func record(trace *[]string, label string) services.Handler {
	return func(ctx context.Context, evt services.Event) error {
		*trace = append(*trace, label)
		return nil
	}
}

func TestEventBus_RequiresInitialize(t *testing.T) {
	bus := services.NewEventBus()

	_, err := bus.On("x", func(ctx context.Context, evt services.Event) error { return nil })
	assert.ErrorIs(t, err, services.ErrNotInitialized)

	err = bus.Emit(context.Background(), "x", nil)
	assert.ErrorIs(t, err, services.ErrNotInitialized)

	_, err = bus.Off("lst_nope")
	assert.ErrorIs(t, err, services.ErrNotInitialized)
}

func TestEventBus_PriorityOrdering(t *testing.T) {
	ctx := context.Background()

	t.Run("higher priority dispatches first", func(t *testing.T) {
		bus := newBus(t)
		var trace []string

		_, err := bus.On("upload", record(&trace, "p1"), services.WithPriority(1))
		require.NoError(t, err)
		_, err = bus.On("upload", record(&trace, "p5"), services.WithPriority(5))
		require.NoError(t, err)
		_, err = bus.On("upload", record(&trace, "p3"), services.WithPriority(3))
		require.NoError(t, err)

		require.NoError(t, bus.Emit(ctx, "upload", nil))
		assert.Equal(t, []string{"p5", "p3", "p1"}, trace)
	})

	t.Run("equal priorities keep registration order", func(t *testing.T) {
		bus := newBus(t)
		var trace []string

		for _, label := range []string{"first", "second", "third"} {
			_, err := bus.On("upload", record(&trace, label), services.WithPriority(2))
			require.NoError(t, err)
		}

		require.NoError(t, bus.Emit(ctx, "upload", nil))
		assert.Equal(t, []string{"first", "second", "third"}, trace)
	})
}

func TestEventBus_FIFOAcrossEmits(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	var trace []string

	// A handler for E1 emits E2 before E1's remaining listeners ran; E2
	// must still be fully dispatched after every E1 listener.
	_, err := bus.On("e1", func(ctx context.Context, evt services.Event) error {
		trace = append(trace, "e1-a")
		return bus.Emit(ctx, "e2", nil)
	}, services.WithPriority(10))
	require.NoError(t, err)
	_, err = bus.On("e1", record(&trace, "e1-b"))
	require.NoError(t, err)
	_, err = bus.On("e2", record(&trace, "e2"))
	require.NoError(t, err)

	require.NoError(t, bus.Emit(ctx, "e1", nil))
	assert.Equal(t, []string{"e1-a", "e1-b", "e2"}, trace)
}

func TestEventBus_OnceListeners(t *testing.T) {
	ctx := context.Background()

	t.Run("fires exactly once across back-to-back emits", func(t *testing.T) {
		bus := newBus(t)
		calls := 0

		_, err := bus.On("ping", func(ctx context.Context, evt services.Event) error {
			calls++
			return nil
		}, services.WithOnce())
		require.NoError(t, err)

		require.NoError(t, bus.Emit(ctx, "ping", nil))
		require.NoError(t, bus.Emit(ctx, "ping", nil))
		assert.Equal(t, 1, calls)

		listeners, err := bus.GetListeners("ping")
		require.NoError(t, err)
		assert.Empty(t, listeners)
	})

	t.Run("removed even when the handler fails", func(t *testing.T) {
		bus := newBus(t)
		calls := 0

		_, err := bus.On("ping", func(ctx context.Context, evt services.Event) error {
			calls++
			return errors.New("boom")
		}, services.WithOnce())
		require.NoError(t, err)

		require.NoError(t, bus.Emit(ctx, "ping", nil))
		require.NoError(t, bus.Emit(ctx, "ping", nil))
		assert.Equal(t, 1, calls)
	})
}

func TestEventBus_FaultIsolation(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	var trace []string

	_, err := bus.On("job", func(ctx context.Context, evt services.Event) error {
		trace = append(trace, "fails")
		return errors.New("handler error")
	}, services.WithPriority(3))
	require.NoError(t, err)
	_, err = bus.On("job", func(ctx context.Context, evt services.Event) error {
		trace = append(trace, "panics")
		panic("handler panic")
	}, services.WithPriority(2))
	require.NoError(t, err)
	_, err = bus.On("job", record(&trace, "survives"), services.WithPriority(1))
	require.NoError(t, err)

	require.NoError(t, bus.Emit(ctx, "job", nil))
	assert.Equal(t, []string{"fails", "panics", "survives"}, trace)
}

func TestEventBus_Off(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	var trace []string

	id, err := bus.On("x", record(&trace, "removed"))
	require.NoError(t, err)
	_, err = bus.On("x", record(&trace, "kept"))
	require.NoError(t, err)

	found, err := bus.Off(id)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = bus.Off(id)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, bus.Emit(ctx, "x", nil))
	assert.Equal(t, []string{"kept"}, trace)
}

func TestEventBus_ClearListeners(t *testing.T) {
	bus := newBus(t)
	var trace []string

	_, err := bus.On("a", record(&trace, "a"))
	require.NoError(t, err)
	_, err = bus.On("b", record(&trace, "b"))
	require.NoError(t, err)

	require.NoError(t, bus.ClearListeners("a"))
	listeners, err := bus.GetListeners("a")
	require.NoError(t, err)
	assert.Empty(t, listeners)

	listeners, err = bus.GetListeners("b")
	require.NoError(t, err)
	assert.Len(t, listeners, 1)

	require.NoError(t, bus.ClearListeners())
	listeners, err = bus.GetListeners("b")
	require.NoError(t, err)
	assert.Empty(t, listeners)
}

func TestEventBus_EventRecord(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	var seen services.Event

	_, err := bus.On("upload.done", func(ctx context.Context, evt services.Event) error {
		seen = evt
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Emit(ctx, "upload.done", map[string]any{"size": 42}))
	assert.Equal(t, "upload.done", seen.Type)
	assert.Equal(t, 42, seen.Data["size"])
	assert.NotEmpty(t, seen.ID)
	assert.False(t, seen.Timestamp.IsZero())
}

func TestEventBus_Status(t *testing.T) {
	bus := newBus(t)

	_, err := bus.On("a", func(ctx context.Context, evt services.Event) error { return nil })
	require.NoError(t, err)
	_, err = bus.On("a", func(ctx context.Context, evt services.Event) error { return nil })
	require.NoError(t, err)
	_, err = bus.On("b", func(ctx context.Context, evt services.Event) error { return nil })
	require.NoError(t, err)

	status := bus.Status()
	assert.True(t, status.Initialized)
	assert.Equal(t, 2, status.Counts["event_types"])
	assert.Equal(t, 3, status.Counts["listeners"])
	assert.Zero(t, status.Counts["queued"])
}
