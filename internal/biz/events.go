package biz

import (
	"sync"
	"sync/atomic"
)

// eventHub fans events out to bounded subscriber channels.
// Publishing never blocks: an event for a full subscriber is dropped and counted.
type eventHub[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	nextID  int
	dropped atomic.Int64
}

func newEventHub[T any]() *eventHub[T] {
	return &eventHub[T]{subs: make(map[int]chan T)}
}

// subscribe registers a channel with the given buffer size. The returned
// func removes the subscription and closes the channel; it is safe to call twice.
func (h *eventHub[T]) subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *eventHub[T]) publish(ev T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *eventHub[T]) droppedCount() int64 {
	return h.dropped.Load()
}
