package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
)

// memoryBus delivers events to forwarders in the same process.
type memoryBus struct {
	mu       sync.RWMutex
	handlers map[int]func(review.StageEvent)
	next     int
	closed   bool
}

func NewMemoryBus() Bus {
	return &memoryBus{handlers: make(map[int]func(review.StageEvent))}
}

func (b *memoryBus) Publish(ctx context.Context, ev review.StageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("memory stage bus closed")
	}
	for _, h := range b.handlers {
		h(ev)
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onEvent func(ev review.StageEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory stage bus closed")
	}
	id := b.next
	b.next++
	b.handlers[id] = onEvent
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[int]func(review.StageEvent))
	return nil
}
