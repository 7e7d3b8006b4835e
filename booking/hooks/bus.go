// Package hooks implements fan-out hooks for call observability.
//
// The call shell publishes lifecycle events (call started, turn processed,
// backend resolved, booking created, call ended) to registered subscribers.
// This decouples the shell from consumers such as the call log recorder, the
// streaming sink and telemetry.
package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus publishes call events to registered subscribers in a fan-out
	// pattern. The bus is thread-safe and supports concurrent Publish,
	// Register, and Close operations.
	//
	// Events are delivered synchronously in the publisher's goroutine, and
	// iteration stops at the first subscriber error. This fail-fast behavior
	// lets critical subscribers (e.g. call log persistence) halt processing
	// when they hit unrecoverable errors.
	Bus interface {
		// Publish delivers the event to every currently registered subscriber.
		// Iteration stops at the first error returned by any subscriber.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber to the bus and returns a Subscription
		// that can be closed to unregister. Register returns an error if sub
		// is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published call events. Implementations must be
	// thread-safe if the same instance is registered with multiple buses.
	//
	// HandleEvent should return an error only if processing fails in a way
	// that should halt delivery (e.g. critical persistence failure). The Bus
	// stops iterating at the first error, so non-critical failures should be
	// logged and swallowed to avoid starving other subscribers.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// Subscription represents an active registration on a Bus. Close removes
	// the subscriber; it is idempotent and always returns nil.
	Subscription interface {
		Close() error
	}

	// SubscriberFunc adapts an ordinary function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent implements Subscriber by invoking the function.
func (fn SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return fn(ctx, event)
}

// NewBus constructs an in-memory event bus ready for immediate use.
//
// The bus implements a synchronous fan-out: when Publish is called each
// registered subscriber receives the event, and if any subscriber returns an
// error iteration stops immediately and that error is returned to the
// publisher.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish delivers the event to every currently registered subscriber. The
// snapshot of subscribers is captured before iteration begins, so
// registrations and unregistrations during Publish do not affect the current
// delivery.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a subscriber to the bus and returns a Subscription handle
// that can be closed to unregister.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus. The method is idempotent and
// thread-safe; events already in progress may still be delivered if Close is
// called during a Publish.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
