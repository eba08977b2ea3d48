// Package fanout provides a registry of per-subscriber bounded channels with
// non-blocking delivery. A slow subscriber drops messages; it never stalls
// the publisher.
package fanout

import "sync"

// Hub broadcasts values of type T to all current subscribers.
type Hub[T any] struct {
	mu      sync.Mutex
	subs    map[chan T]struct{}
	sticky  bool
	last    *T
	dropped uint64
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[chan T]struct{})}
}

// NewStickyHub returns a hub that retains the last published value and
// replays it to new subscribers, so they never start from an empty state.
func NewStickyHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[chan T]struct{}), sticky: true}
}

// Subscribe registers a new bounded subscriber channel and returns it along
// with a leave function. Leaving twice is a no-op. On a sticky hub the last
// published value is delivered first.
func (h *Hub[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	h.mu.Lock()
	if h.sticky && h.last != nil {
		ch <- *h.last // fresh channel with room for at least one value
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	leave := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
	return ch, leave
}

// Publish delivers v to every subscriber whose channel has room. Full
// subscriber channels drop the value for that subscriber only. It returns
// the number of subscribers the value was dropped for.
func (h *Hub[T]) Publish(v T) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sticky {
		h.last = &v
	}

	dropped := 0
	for ch := range h.subs {
		select {
		case ch <- v:
		default:
			dropped++
		}
	}
	h.dropped += uint64(dropped)
	return dropped
}

// Last returns the retained value of a sticky hub, if any.
func (h *Hub[T]) Last() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		var zero T
		return zero, false
	}
	return *h.last, true
}

// Count reports the number of current subscribers.
func (h *Hub[T]) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many values have been dropped across all subscribers.
func (h *Hub[T]) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
