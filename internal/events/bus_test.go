package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus[Event](nil)
	var got []string
	bus.Subscribe(ActivitySaved, func(e Event) { got = append(got, "first:"+e.ActivityID) })
	bus.SubscribeAll(func(name Name, e Event) { got = append(got, string(name)+":"+e.ActivityID) })
	bus.Subscribe(ActivityRemoved, func(e Event) { got = append(got, "removed:"+e.ActivityID) })

	bus.Emit(ActivitySaved, Event{ActivityID: "a1"})

	require.Equal(t, []string{"first:a1", "activity:saved:a1"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus[Event](nil)
	calls := 0
	unsubscribe := bus.Subscribe(ActivityUpdated, func(Event) { calls++ })
	bus.Emit(ActivityUpdated, Event{})
	unsubscribe()
	unsubscribe()
	bus.Emit(ActivityUpdated, Event{})

	require.Equal(t, 1, calls)
	require.Zero(t, bus.Len())
}

func TestBusRecoversFromPanickingListener(t *testing.T) {
	bus := NewBus[LegacyEvent](nil)
	delivered := false
	bus.Subscribe(LegacyActivityCompleted, func(LegacyEvent) { panic("listener bug") })
	bus.Subscribe(LegacyActivityCompleted, func(e LegacyEvent) { delivered = e.ActivityID == "a1" })

	require.NotPanics(t, func() {
		bus.Emit(LegacyActivityCompleted, LegacyEvent{ActivityID: "a1"})
	})
	require.True(t, delivered)
}

func TestBusListenerMayUnsubscribeDuringEmit(t *testing.T) {
	bus := NewBus[Event](nil)
	calls := 0
	var unsubscribe func()
	unsubscribe = bus.Subscribe(ActivitySaved, func(Event) {
		calls++
		unsubscribe()
	})
	bus.Emit(ActivitySaved, Event{})
	bus.Emit(ActivitySaved, Event{})
	require.Equal(t, 1, calls)
}
