package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Handler is a callback bound to a named event type. A returned error is
// logged and does not affect delivery to other listeners.
type Handler func(ctx context.Context, evt Event) error

// Event is the transient record dispatched to listeners. IDs are ULIDs so
// they sort in queue order.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ListenerInfo is the introspection snapshot returned by GetListeners.
type ListenerInfo struct {
	ID           string    `json:"id"`
	EventType    string    `json:"event_type"`
	Once         bool      `json:"once"`
	Priority     int       `json:"priority"`
	RegisteredAt time.Time `json:"registered_at"`
}

type listener struct {
	id           string
	eventType    string
	handler      Handler
	once         bool
	priority     int
	registeredAt time.Time
}

// ListenerOption customizes a single registration.
type ListenerOption func(*listener)

// WithOnce removes the listener after its first invocation, even when the
// handler fails.
func WithOnce() ListenerOption {
	return func(l *listener) {
		l.once = true
	}
}

// WithPriority orders dispatch for an event type; higher runs first. Equal
// priorities keep registration order.
func WithPriority(priority int) ListenerOption {
	return func(l *listener) {
		l.priority = priority
	}
}

// EventBusOption customizes bus construction.
type EventBusOption func(*EventBus)

// WithBusLogger overrides the bus logger.
func WithBusLogger(logger Logger) EventBusOption {
	return func(b *EventBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBusClock injects a custom clock (useful for tests).
func WithBusClock(clock func() time.Time) EventBusOption {
	return func(b *EventBus) {
		if clock != nil {
			b.now = clock
		}
	}
}

// EventBus dispatches events to registered listeners in priority order
// through a single FIFO drain loop. Handlers run sequentially; a handler
// error or panic is logged and delivery continues. Emitting from inside a
// handler queues the event for the drain already in progress instead of
// recursing.
type EventBus struct {
	mu          sync.Mutex
	initialized bool
	listeners   map[string][]*listener
	queue       []Event
	draining    bool
	logger      Logger
	now         func() time.Time
}

// NewEventBus returns an uninitialized bus. Call Initialize before use.
func NewEventBus(opts ...EventBusOption) *EventBus {
	b := &EventBus{
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b
}

func (b *EventBus) Name() string { return "event-bus" }

// Initialize prepares the bus. Repeated calls are no-op successes.
func (b *EventBus) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	b.listeners = make(map[string][]*listener)
	b.queue = nil
	b.initialized = true
	return nil
}

// On registers a handler for an event type and returns the listener id.
// The event type's listener list is kept sorted by descending priority;
// ties keep insertion order.
func (b *EventBus) On(eventType string, handler Handler, opts ...ListenerOption) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return "", ErrNotInitialized
	}
	if handler == nil {
		return "", ErrNilDependency
	}

	l := &listener{
		id:           "lst_" + ulid.Make().String(),
		eventType:    eventType,
		handler:      handler,
		registeredAt: b.now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	b.listeners[eventType] = append(b.listeners[eventType], l)
	sort.SliceStable(b.listeners[eventType], func(i, j int) bool {
		return b.listeners[eventType][i].priority > b.listeners[eventType][j].priority
	})

	return l.id, nil
}

// Off removes a listener by id, scanning every event type. Returns whether
// a listener was found.
func (b *EventBus) Off(listenerID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return false, ErrNotInitialized
	}

	for eventType, list := range b.listeners {
		for i, l := range list {
			if l.id == listenerID {
				b.listeners[eventType] = append(list[:i:i], list[i+1:]...)
				return true, nil
			}
		}
	}
	return false, nil
}

// Emit appends the event to the FIFO queue and drains it. At most one drain
// loop runs at a time: if a drain is already in progress (an emit from
// inside a handler, or an overlapping goroutine) the event is queued and
// picked up by that loop, and this call returns immediately. The call that
// owns the drain returns only after its event, and everything queued ahead
// of it, has been fully dispatched.
func (b *EventBus) Emit(ctx context.Context, eventType string, data map[string]any) error {
	b.mu.Lock()

	if !b.initialized {
		b.mu.Unlock()
		return ErrNotInitialized
	}

	b.queue = append(b.queue, Event{
		ID:        "evt_" + ulid.Make().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: b.now(),
	})

	if b.draining {
		b.mu.Unlock()
		return nil
	}

	b.draining = true
	b.drainLocked(ctx)
	b.draining = false
	b.mu.Unlock()
	return nil
}

// drainLocked processes the queue until empty. Called with b.mu held; the
// lock is released around handler invocations so handlers can call back
// into the bus.
func (b *EventBus) drainLocked(ctx context.Context) {
	for len(b.queue) > 0 {
		evt := b.queue[0]
		b.queue = b.queue[1:]

		targets := make([]*listener, len(b.listeners[evt.Type]))
		copy(targets, b.listeners[evt.Type])

		b.mu.Unlock()
		fired := make([]string, 0, len(targets))
		for _, l := range targets {
			b.invoke(ctx, l, evt)
			if l.once {
				fired = append(fired, l.id)
			}
		}
		b.mu.Lock()

		for _, id := range fired {
			b.removeLocked(evt.Type, id)
		}
	}
}

// invoke runs a single handler with fault isolation: errors and panics are
// logged, never propagated to the drain loop.
func (b *EventBus) invoke(ctx context.Context, l *listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic: event=%s listener=%s: %v", evt.Type, l.id, r)
		}
	}()

	if err := l.handler(ctx, evt); err != nil {
		b.logger.Error("event handler error: event=%s listener=%s: %v", evt.Type, l.id, err)
	}
}

func (b *EventBus) removeLocked(eventType, listenerID string) {
	list := b.listeners[eventType]
	for i, l := range list {
		if l.id == listenerID {
			b.listeners[eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// GetListeners returns snapshots of the listeners registered for an event
// type, in dispatch order.
func (b *EventBus) GetListeners(eventType string) ([]ListenerInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	list := b.listeners[eventType]
	out := make([]ListenerInfo, 0, len(list))
	for _, l := range list {
		out = append(out, ListenerInfo{
			ID:           l.id,
			EventType:    l.eventType,
			Once:         l.once,
			Priority:     l.priority,
			RegisteredAt: l.registeredAt,
		})
	}
	return out, nil
}

// ClearListeners drops the listeners for the given event types, or every
// listener when called with no arguments.
func (b *EventBus) ClearListeners(eventTypes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return ErrNotInitialized
	}

	if len(eventTypes) == 0 {
		b.listeners = make(map[string][]*listener)
		return nil
	}

	for _, eventType := range eventTypes {
		delete(b.listeners, eventType)
	}
	return nil
}

// Status reports the initialized flag plus listener and queue counts.
func (b *EventBus) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, list := range b.listeners {
		total += len(list)
	}

	return Status{
		Name:        b.Name(),
		Initialized: b.initialized,
		Counts: map[string]int{
			"event_types": len(b.listeners),
			"listeners":   total,
			"queued":      len(b.queue),
		},
	}
}
