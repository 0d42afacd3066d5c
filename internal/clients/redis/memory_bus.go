package redis

import (
	"context"
	"sync"

	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

// MemoryBus is an in-process EventBus used when REDIS_ADDR is unset (dev)
// and in tests. Every Consume call gets its own subscription, mirroring
// independent consumer groups.
type MemoryBus struct {
	log *logger.Logger

	mu     sync.Mutex
	subs   []chan domain.EntityEvent
	closed bool
}

func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{log: log.With("service", "MemoryEventBus")}
}

func (b *MemoryBus) Publish(ctx context.Context, ev domain.EntityEvent) error {
	b.mu.Lock()
	subs := make([]chan domain.EntityEvent, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Slow consumer; the stream contract is at-least-once with
			// duplicate-tolerant consumers, so dropping here is logged only.
			b.log.Warn("memory bus subscriber full, dropping event", "entity_id", ev.EntityID)
		}
	}
	return nil
}

func (b *MemoryBus) Consume(ctx context.Context, group, consumer string, handler func(domain.EntityEvent) error) error {
	ch := make(chan domain.EntityEvent, 256)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			if err := handler(ev); err != nil {
				b.log.Error("event handler failed", "group", group, "entity_id", ev.EntityID, "error", err)
			}
		}
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
