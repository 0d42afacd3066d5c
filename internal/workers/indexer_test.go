package workers

import (
	"context"
	"testing"
	"time"

	"github.com/algobrain/threatgraph-backend/internal/clients/redis"
	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
	"github.com/algobrain/threatgraph-backend/internal/search"
)

func TestIndexerIndexesNodeEvents(t *testing.T) {
	log := logger.NewNop()
	bus := redis.NewMemoryBus(log)
	idx := search.NewMemoryIndex()
	w := NewIndexer(log, bus, idx, "test-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	ev := domain.EntityEvent{
		EventType:     domain.EventNodeUpserted,
		EntityID:      "tool--1",
		Label:         "Malware",
		Content:       "Emotet banking trojan turned loader",
		SourceCatalog: "enterprise",
	}

	deadline := time.After(2 * time.Second)
	for idx.Len() == 0 {
		_ = bus.Publish(ctx, ev)
		select {
		case <-deadline:
			t.Fatalf("document never indexed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	hits, err := idx.Search(ctx, "emotet", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "tool--1" {
		t.Fatalf("hits: %+v", hits)
	}
}

func TestIndexerIgnoresRelationshipEvents(t *testing.T) {
	log := logger.NewNop()
	idx := search.NewMemoryIndex()
	w := NewIndexer(log, redis.NewMemoryBus(log), idx, "test-1")

	ev := domain.EntityEvent{EventType: domain.EventCrossReferenceFound, EntityID: "cross-ref--a--b"}
	if err := w.handle(ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("relationship events must not be indexed")
	}
}

func TestMonitorStopsOnCancel(t *testing.T) {
	log := logger.NewNop()
	stats := func() domain.StatsSnapshot { return domain.StatsSnapshot{} }
	m := NewMonitor(log, stats, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor did not stop")
	}
}
