package tickbuffer

import (
	"sync"

	"pairstream/internal/market"
)

// Buffer keeps the most recent ticks per symbol in a fixed-capacity ring.
// The oldest tick is evicted when a symbol's ring is full. Ticks are kept in
// append order; no re-sorting happens on out-of-order arrivals.
type Buffer struct {
	capacity int

	globalMu sync.RWMutex
	data     map[string]*symbolRing
}

type symbolRing struct {
	mu    sync.Mutex
	ticks []market.Tick
	head  int // index of the oldest tick once the ring is full
	full  bool
}

func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		data:     make(map[string]*symbolRing),
	}
}

// Ensure idempotently allocates storage for a symbol. Existing data is kept.
func (b *Buffer) Ensure(symbol string) {
	b.ring(symbol)
}

// Append adds a tick to its symbol's ring, evicting the oldest entry when the
// ring is at capacity.
func (b *Buffer) Append(tick market.Tick) {
	ring := b.ring(tick.Symbol)

	ring.mu.Lock()
	if ring.full {
		ring.ticks[ring.head] = tick
		ring.head = (ring.head + 1) % b.capacity
	} else {
		ring.ticks = append(ring.ticks, tick)
		if len(ring.ticks) == b.capacity {
			ring.full = true
		}
	}
	ring.mu.Unlock()
}

// Snapshot returns an independent copy of the symbol's ticks in append order.
// Unknown symbols yield an empty slice.
func (b *Buffer) Snapshot(symbol string) []market.Tick {
	b.globalMu.RLock()
	ring, ok := b.data[symbol]
	b.globalMu.RUnlock()
	if !ok {
		return nil
	}

	ring.mu.Lock()
	defer ring.mu.Unlock()

	if !ring.full {
		cp := make([]market.Tick, len(ring.ticks))
		copy(cp, ring.ticks)
		return cp
	}

	cp := make([]market.Tick, 0, b.capacity)
	cp = append(cp, ring.ticks[ring.head:]...)
	cp = append(cp, ring.ticks[:ring.head]...)
	return cp
}

// Len reports how many ticks are currently held for a symbol.
func (b *Buffer) Len(symbol string) int {
	b.globalMu.RLock()
	ring, ok := b.data[symbol]
	b.globalMu.RUnlock()
	if !ok {
		return 0
	}

	ring.mu.Lock()
	defer ring.mu.Unlock()
	return len(ring.ticks)
}

func (b *Buffer) ring(symbol string) *symbolRing {
	// Fast path: lock per-symbol ring only
	b.globalMu.RLock()
	ring, ok := b.data[symbol]
	b.globalMu.RUnlock()
	if ok {
		return ring
	}

	// Need to initialize a new symbol ring (exclusive lock)
	b.globalMu.Lock()
	if ring, ok = b.data[symbol]; !ok {
		ring = &symbolRing{ticks: make([]market.Tick, 0, b.capacity)}
		b.data[symbol] = ring
	}
	b.globalMu.Unlock()
	return ring
}
