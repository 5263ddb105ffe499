// Package fanout delivers published values to a changing set of subscribers.
package fanout

import "sync"

// Token cancels one subscription.
type Token interface {
	Unsubscribe()
}

// Hub multiplexes values to registered handlers. Handlers are called on the
// publisher's goroutine, outside the hub lock, and must not block.
type Hub[T any] struct {
	mu       sync.Mutex
	handlers map[uint64]func(T)
	nextID   uint64
	last     T
	hasLast  bool
}

type hubToken[T any] struct {
	id  uint64
	hub *Hub[T]
}

func (t *hubToken[T]) Unsubscribe() {
	t.hub.mu.Lock()
	delete(t.hub.handlers, t.id)
	t.hub.mu.Unlock()
}

func New[T any]() *Hub[T] {
	return &Hub[T]{handlers: make(map[uint64]func(T))}
}

// Subscribe registers fn. If a value was already published, fn receives it
// before Subscribe returns so a late subscriber never starts empty.
func (h *Hub[T]) Subscribe(fn func(T)) Token {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.handlers[id] = fn
	last, hasLast := h.last, h.hasLast
	h.mu.Unlock()

	if hasLast {
		fn(last)
	}
	return &hubToken[T]{id: id, hub: h}
}

// Publish records v as the latest value and hands it to every handler.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	h.last, h.hasLast = v, true
	// Snapshot handlers so user code never runs under the lock.
	hs := make([]func(T), 0, len(h.handlers))
	for _, fn := range h.handlers {
		hs = append(hs, fn)
	}
	h.mu.Unlock()

	for _, fn := range hs {
		fn(v)
	}
}

// Last returns the most recently published value.
func (h *Hub[T]) Last() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.hasLast
}

func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}

// Latest subscribes with a one-slot channel that always holds the newest
// value: a slow reader skips intermediate values instead of stalling the
// publisher. The channel is never closed; stop reading after Unsubscribe.
func Latest[T any](h *Hub[T]) (<-chan T, Token) {
	ch := make(chan T, 1)
	var mu sync.Mutex
	tok := h.Subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case <-ch:
		default:
		}
		ch <- v
	})
	return ch, tok
}
