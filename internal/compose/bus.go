package compose

import (
	"sort"
	"sync"
	"time"

	"github.com/thraizz/battlescene/internal/prefs"
)

// NotificationType indicates what a notification carries.
type NotificationType string

const (
	NotifyPlanReady          NotificationType = "plan_ready"
	NotifyPreferencesChanged NotificationType = "preferences_changed"
	NotifySelectionMade      NotificationType = "selection_made"
)

// Selection is a user choice forwarded unchanged to the battle transport.
type Selection struct {
	Kind     string `json:"kind"`
	EntityID string `json:"entity_id,omitempty"`
	MoveID   string `json:"move_id,omitempty"`
}

// Notification is published by the composer. Exactly one of Plan,
// Preferences or Selection is set, matching Type.
type Notification struct {
	Type        NotificationType
	Plan        *Plan
	Preferences *prefs.Preferences
	Selection   *Selection
	Timestamp   time.Time
}

// Listener reacts to notifications.
type Listener func(Notification)

type subscription struct {
	handle   int
	typ      NotificationType
	typed    bool
	callback Listener
}

// Bus is a synchronous publish/subscribe hub with type filtering. Listeners
// run on the publishing goroutine in subscription order and may subscribe or
// unsubscribe from within a callback.
type Bus struct {
	mu         sync.RWMutex
	subs       map[int]subscription
	nextHandle int
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscription)}
}

// Subscribe registers a listener for all notifications and returns a handle.
func (b *Bus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	return b.add(subscription{callback: listener})
}

// SubscribeTyped registers a listener for one notification type.
func (b *Bus) SubscribeTyped(typ NotificationType, listener Listener) int {
	if listener == nil {
		return -1
	}
	return b.add(subscription{typ: typ, typed: true, callback: listener})
}

func (b *Bus) add(s subscription) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.handle = b.nextHandle
	b.nextHandle++
	b.subs[s.handle] = s
	return s.handle
}

// Unsubscribe removes the listener identified by handle.
func (b *Bus) Unsubscribe(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, handle)
}

// Publish delivers n to every matching listener.
func (b *Bus) Publish(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	b.mu.RLock()
	matching := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if !s.typed || s.typ == n.Type {
			matching = append(matching, s)
		}
	}
	b.mu.RUnlock()

	sort.Slice(matching, func(i, j int) bool { return matching[i].handle < matching[j].handle })
	for _, s := range matching {
		s.callback(n)
	}
}
