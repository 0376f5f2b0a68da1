// Package events provides observability sinks for the engine's structured
// events.
package events

import (
	"sync"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// MemoryPublisher keeps the last capacity events in a ring. Used in paper and
// monitor modes and as the backing feed for the operator API when no broker
// is configured.
type MemoryPublisher struct {
	mu   sync.Mutex
	ring []domain.Event
	next int
	full bool
}

// NewMemoryPublisher creates a ring holding up to capacity events.
func NewMemoryPublisher(capacity int) *MemoryPublisher {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryPublisher{ring: make([]domain.Event, capacity)}
}

// Publish stores the event, overwriting the oldest entry when full. It never
// blocks.
func (p *MemoryPublisher) Publish(ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ring[p.next] = ev
	p.next = (p.next + 1) % len(p.ring)
	if p.next == 0 {
		p.full = true
	}
}

// Recent returns up to n events, newest first.
func (p *MemoryPublisher) Recent(n int) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := p.next
	if p.full {
		size = len(p.ring)
	}
	if n > size {
		n = size
	}

	out := make([]domain.Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (p.next - i + len(p.ring)) % len(p.ring)
		out = append(out, p.ring[idx])
	}
	return out
}

var _ domain.EventPublisher = (*MemoryPublisher)(nil)

// Fanout publishes every event to each sink in order.
type Fanout []domain.EventPublisher

func (f Fanout) Publish(ev domain.Event) {
	for _, p := range f {
		p.Publish(ev)
	}
}

var _ domain.EventPublisher = (Fanout)(nil)
