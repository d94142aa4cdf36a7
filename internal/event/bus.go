package event

import (
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler is a function that handles an event.
type Handler func(Event)

// Subscription is a handle to a registered event handler. It is returned by
// Subscribe and must be released by the subscriber during teardown.
//
// Release is idempotent: calling it more than once, or after the bus has
// already dropped the handler, is a no-op. This makes teardown paths safe
// even under partial-initialization failure, where some subscriptions may
// already have been released individually.
type Subscription struct {
	bus       *Bus
	id        uint64
	eventType string
	released  atomic.Bool
}

// Release removes the subscription from the bus. Safe to call multiple times.
func (s *Subscription) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.bus.remove(s.eventType, s.id)
}

// subscription is the bus-internal record for a registered handler.
type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a simple synchronous pub-sub event bus.
// It allows the host environment and the capture service to communicate
// without direct dependencies.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // eventType -> subscriptions
	nextID        atomic.Uint64
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for a specific event type and returns a
// Subscription handle used to release it.
func (b *Bus) Subscribe(eventType string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	b.subscriptions[eventType] = append(b.subscriptions[eventType], subscription{
		id:      id,
		handler: handler,
	})

	return &Subscription{
		bus:       b,
		id:        id,
		eventType: eventType,
	}
}

// remove drops a subscription by event type and ID.
func (b *Bus) remove(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.subscriptions[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish dispatches an event to all handlers registered for its type,
// in registration order, on the caller's goroutine.
// If a handler panics, the panic is logged, recovered, and publishing
// continues to remaining handlers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subscriptions[event.EventType()]))
	copy(subs, b.subscriptions[event.EventType()])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.safeCall(sub.handler, event)
	}
}

// safeCall invokes a handler and recovers from any panics.
// Panics are logged with stack traces so that one misbehaving handler
// cannot block event delivery to other handlers.
func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: event handler panicked for event %s: %v\n%s",
				event.EventType(), r, debug.Stack())
		}
	}()
	handler(event)
}
