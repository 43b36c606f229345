package compose

import (
	"testing"

	"github.com/thraizz/battlescene/internal/prefs"
)

func TestBusSubscribeTyped(t *testing.T) {
	bus := NewBus()

	planCount := 0
	prefsCount := 0

	handle1 := bus.SubscribeTyped(NotifyPlanReady, func(n Notification) {
		planCount++
	})
	handle2 := bus.SubscribeTyped(NotifyPreferencesChanged, func(n Notification) {
		prefsCount++
	})

	bus.Publish(Notification{Type: NotifyPlanReady, Plan: &Plan{Cycle: 1}})
	if planCount != 1 {
		t.Fatalf("expected plan count 1, got %d", planCount)
	}
	if prefsCount != 0 {
		t.Fatalf("expected preferences count 0, got %d", prefsCount)
	}

	p := prefs.Default()
	bus.Publish(Notification{Type: NotifyPreferencesChanged, Preferences: &p})
	if prefsCount != 1 {
		t.Fatalf("expected preferences count 1, got %d", prefsCount)
	}

	bus.Unsubscribe(handle1)
	bus.Publish(Notification{Type: NotifyPlanReady, Plan: &Plan{Cycle: 2}})
	if planCount != 1 {
		t.Fatalf("expected plan count still 1 after unsubscribe, got %d", planCount)
	}

	bus.Unsubscribe(handle2)
	bus.Publish(Notification{Type: NotifyPreferencesChanged, Preferences: &p})
	if prefsCount != 1 {
		t.Fatalf("expected preferences count still 1 after unsubscribe, got %d", prefsCount)
	}
}

func TestBusSubscribeAllInOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		bus.Subscribe(func(Notification) { order = append(order, i) })
	}
	bus.Publish(Notification{Type: NotifySelectionMade, Selection: &Selection{Kind: "click"}})

	if len(order) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected subscription order, got %v", order)
		}
	}
}

func TestBusListenerMaySubscribe(t *testing.T) {
	bus := NewBus()
	late := 0
	bus.Subscribe(func(Notification) {
		bus.Subscribe(func(Notification) { late++ })
	})

	bus.Publish(Notification{Type: NotifyPlanReady})
	bus.Publish(Notification{Type: NotifyPlanReady})
	if late != 1 {
		t.Fatalf("expected late listener to see only the second publish, got %d", late)
	}
}

func TestBusNilListener(t *testing.T) {
	bus := NewBus()
	if h := bus.Subscribe(nil); h != -1 {
		t.Fatalf("expected -1 for nil listener, got %d", h)
	}
	if h := bus.SubscribeTyped(NotifyPlanReady, nil); h != -1 {
		t.Fatalf("expected -1 for nil typed listener, got %d", h)
	}
}

func TestBusStampsTimestamp(t *testing.T) {
	bus := NewBus()
	var got Notification
	bus.Subscribe(func(n Notification) { got = n })
	bus.Publish(Notification{Type: NotifyPlanReady})
	if got.Timestamp.IsZero() {
		t.Fatal("expected publish to stamp a timestamp")
	}
}
