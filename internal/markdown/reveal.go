package markdown

import "sync"

// RevealBus carries "open this artifact" signals from the renderer to the
// artifact pane. The bus owns the dedup set: an artifact id fires at most
// one signal for the lifetime of the bus, no matter how many times the same
// link is re-rendered while text streams in.
//
// The bus is created by the rendering surface and passed by reference to
// every collaborator that needs it.
type RevealBus struct {
	mu   sync.Mutex
	seen map[int]struct{}
	ch   chan int
}

// NewRevealBus creates a bus with the given signal buffer capacity.
// Capacity <= 0 uses a default suited to interactive rendering.
func NewRevealBus(capacity int) *RevealBus {
	if capacity <= 0 {
		capacity = 64
	}
	return &RevealBus{
		seen: make(map[int]struct{}),
		ch:   make(chan int, capacity),
	}
}

// Signals returns the channel of artifact ids scheduled for reveal.
// The rendering surface is expected to drain it.
func (b *RevealBus) Signals() <-chan int {
	return b.ch
}

// Seen reports whether the id has already been encountered.
func (b *RevealBus) Seen(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.seen[id]
	return ok
}

// reveal records the id and schedules a signal on first encounter. The set
// is append-only; repeat encounters return false and emit nothing. A full
// buffer drops the signal rather than blocking the render.
func (b *RevealBus) reveal(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}

	select {
	case b.ch <- id:
	default:
	}
	return true
}
