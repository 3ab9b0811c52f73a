package events

import (
	"fmt"
	"sync"

	"example.com/activitysync/internal/logger"
)

type subscription[T any] struct {
	id   uint64
	name Name
	all  bool
	fn   func(Name, T)
}

// Bus is a synchronous in-process publish/subscribe hub. Listeners run on the
// emitting goroutine in subscription order; a panicking listener is logged and
// does not stop the others.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
	log    *logger.Logger
}

// NewBus constructs an empty Bus.
func NewBus[T any](log *logger.Logger) *Bus[T] {
	return &Bus[T]{log: logger.OrNop(log)}
}

// Subscribe registers fn for name and returns a function that removes it.
func (b *Bus[T]) Subscribe(name Name, fn func(T)) func() {
	return b.add(subscription[T]{name: name, fn: func(_ Name, detail T) { fn(detail) }})
}

// SubscribeAll registers fn for every event.
func (b *Bus[T]) SubscribeAll(fn func(Name, T)) func() {
	return b.add(subscription[T]{all: true, fn: fn})
}

func (b *Bus[T]) add(sub subscription[T]) func() {
	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers detail to every listener of name.
func (b *Bus[T]) Emit(name Name, detail T) {
	b.mu.RLock()
	targets := make([]subscription[T], 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.all || sub.name == name {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(sub, name, detail)
	}
}

func (b *Bus[T]) deliver(sub subscription[T], name Name, detail T) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("events: listener panicked", "event", string(name), "panic", fmt.Sprint(rec))
		}
	}()
	sub.fn(name, detail)
}

// Len returns the number of registered listeners.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
