package observability

import (
	"context"
	"sync"

	"github.com/aretw0/sluice/pkg/domain"
)

// Bus fans node events out to channel subscribers.
// Slow subscribers lose events instead of blocking the engine.
type Bus struct {
	mu     sync.Mutex
	subs   map[chan domain.Event]struct{}
	buffer int
}

// NewBus creates a bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[chan domain.Event]struct{}), buffer: buffer}
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives events until ctx is done.
func (b *Bus) Subscribe(ctx context.Context) <-chan domain.Event {
	ch := make(chan domain.Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}
