// Package redis provides the event-stream client the pipeline publishes to
// and the downstream workers consume from.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

// EventBus is an append-only stream of entity events with at-least-once
// delivery. Consumers must tolerate duplicates.
type EventBus interface {
	Publish(ctx context.Context, ev domain.EntityEvent) error
	// Consume blocks, delivering events to handler until ctx is cancelled.
	// Each (group, consumer) pair reads the stream independently.
	Consume(ctx context.Context, group, consumer string, handler func(domain.EntityEvent) error) error
	Close() error
}

type streamBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	stream string
	maxLen int64
}

func NewEventBus(log *logger.Logger) (EventBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	stream := strings.TrimSpace(os.Getenv("REDIS_STREAM"))
	if stream == "" {
		stream = "entity_events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &streamBus{
		log:    log.With("service", "RedisEventBus"),
		rdb:    rdb,
		stream: stream,
		maxLen: 100000,
	}, nil
}

func (b *streamBus) Publish(ctx context.Context, ev domain.EntityEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{"payload": raw},
	}).Err()
}

func (b *streamBus) Consume(ctx context.Context, group, consumer string, handler func(domain.EntityEvent) error) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	if handler == nil {
		return fmt.Errorf("handler required")
	}

	err := b.rdb.XGroupCreateMkStream(ctx, b.stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis xgroup create: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := b.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{b.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Warn("xreadgroup failed, backing off", "group", group, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, st := range streams {
			for _, msg := range st.Messages {
				ev, ok := decodeEvent(msg.Values)
				if !ok {
					b.log.Warn("bad event payload, acking and skipping", "message_id", msg.ID)
				} else if herr := handler(ev); herr != nil {
					// Ack anyway: the graph is the source of truth and a
					// poison message must not wedge the group. The miss is
					// reconciled out of band.
					b.log.Error("event handler failed", "group", group, "entity_id", ev.EntityID, "error", herr)
				}
				if err := b.rdb.XAck(ctx, b.stream, group, msg.ID).Err(); err != nil {
					b.log.Warn("xack failed", "group", group, "message_id", msg.ID, "error", err)
				}
			}
		}
	}
}

func (b *streamBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func decodeEvent(values map[string]any) (domain.EntityEvent, bool) {
	var ev domain.EntityEvent
	raw, ok := values["payload"].(string)
	if !ok {
		return ev, false
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, false
	}
	return ev, true
}
