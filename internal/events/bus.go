// Package events is a small typed publish/subscribe channel used in place
// of ambient global events.
package events

import "sync"

// RefreshRequested asks the notification sync engine to fetch soon. It is
// a hint: the engine may skip it if a fetch is already running.
type RefreshRequested struct {
	// Reason is a short tag for logs ("key", "broker", ...).
	Reason string
}

// Bus delivers values of type T to every subscriber, synchronously and in
// subscription order. The zero value is ready to use.
type Bus[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is safe to call more than once.
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every current subscriber with v. Subscribers may
// subscribe or unsubscribe from inside the callback.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	subs := make([]subscriber[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}
