package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/algobrain/threatgraph-backend/internal/data/graph"
	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/mapping"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
	"github.com/algobrain/threatgraph-backend/internal/resolve"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 10
	cfg.MaxRetries = 3
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func newTestOrchestrator(store graph.Store) *Orchestrator {
	log := logger.NewNop()
	cfg := testConfig()
	return NewOrchestrator(log, cfg, mapping.New(), resolve.New(log, cfg.Resolver), store, nil, nil)
}

func writeSource(t *testing.T, name string, objects []map[string]any) string {
	t.Helper()
	doc := map[string]any{"objects": objects}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal source: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func attackPattern(id, extID, name string) map[string]any {
	return map[string]any{
		"type": "attack-pattern",
		"id":   id,
		"name": name,
		"external_references": []any{
			map[string]any{"source_name": "mitre-attack", "external_id": extID},
		},
	}
}

func usesRel(id, source, target string) map[string]any {
	return map[string]any{
		"type":              "relationship",
		"id":                id,
		"relationship_type": "uses",
		"source_ref":        source,
		"target_ref":        target,
	}
}

func TestIngestWritesNodesAndRelationships(t *testing.T) {
	store := graph.NewMemoryStore()
	o := newTestOrchestrator(store)
	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "Data Obfuscation"),
		attackPattern("attack-pattern--2", "T1002", "Another Technique"),
		usesRel("relationship--1", "attack-pattern--1", "attack-pattern--2"),
	})

	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.NodesWritten != 2 {
		t.Fatalf("nodes written: want=2 got=%d", result.NodesWritten)
	}
	if result.RelationshipsWritten != 1 {
		t.Fatalf("relationships written: want=1 got=%d", result.RelationshipsWritten)
	}
	if result.Errors != 0 {
		t.Fatalf("errors: want=0 got=%d", result.Errors)
	}
	if store.RelationshipCount("USES") != 1 {
		t.Fatalf("USES relationships in store: want=1 got=%d", store.RelationshipCount("USES"))
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	store := graph.NewMemoryStore()
	o := newTestOrchestrator(store)
	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "Data Obfuscation"),
		usesRel("relationship--1", "attack-pattern--1", "attack-pattern--1"),
	})

	for run := 0; run < 2; run++ {
		if _, err := o.Ingest(context.Background(), src, "enterprise"); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
	}

	counts, err := store.LabelCounts(context.Background())
	if err != nil {
		t.Fatalf("LabelCounts: %v", err)
	}
	if counts["AttackPattern"] != 1 {
		t.Fatalf("AttackPattern count after re-ingest: want=1 got=%d", counts["AttackPattern"])
	}
	if store.RelationshipCount("USES") != 1 {
		t.Fatalf("USES count after re-ingest: want=1 got=%d", store.RelationshipCount("USES"))
	}
}

func TestIngestSkipsBadRecordsAndContinues(t *testing.T) {
	store := graph.NewMemoryStore()
	o := newTestOrchestrator(store)
	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "Good"),
		{"type": "x-unknown-kind", "id": "x--1"},
		{"type": "attack-pattern", "name": "no id"},
	})

	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.NodesWritten != 1 {
		t.Fatalf("nodes written: want=1 got=%d", result.NodesWritten)
	}
	if result.Errors != 2 {
		t.Fatalf("errors: want=2 got=%d", result.Errors)
	}
}

func TestIngestDropsRelationshipsWithMissingEndpoints(t *testing.T) {
	store := graph.NewMemoryStore()
	o := newTestOrchestrator(store)
	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "Good"),
		usesRel("relationship--1", "attack-pattern--1", "attack-pattern--missing"),
	})

	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.RelationshipsWritten != 0 {
		t.Fatalf("relationships written: want=0 got=%d", result.RelationshipsWritten)
	}
	if result.Errors != 1 {
		t.Fatalf("errors: want=1 got=%d", result.Errors)
	}
}

func TestIngestLoadFailureIsFatal(t *testing.T) {
	o := newTestOrchestrator(graph.NewMemoryStore())

	_, err := o.Ingest(context.Background(), "/does/not/exist.json", "enterprise")
	if err == nil {
		t.Fatalf("expected error for missing source")
	}
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("want RunError, got %v", err)
	}
	if runErr.Stage != StageLoading {
		t.Fatalf("stage: want=%s got=%s", StageLoading, runErr.Stage)
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("want wrapped LoadError, got %v", err)
	}
}

// flakyStore fails UpsertNodes for batches containing a marked node id. With
// failTimes=0 the failure is permanent.
type flakyStore struct {
	*graph.MemoryStore
	mu        sync.Mutex
	failID    string
	transient bool
	failTimes int
	failures  int
	calls     int
}

func (s *flakyStore) UpsertNodes(ctx context.Context, label string, nodes []*domain.Node) error {
	s.mu.Lock()
	s.calls++
	shouldFail := false
	for _, n := range nodes {
		if n.ID == s.failID {
			shouldFail = true
		}
	}
	if shouldFail && s.failTimes > 0 && s.failures >= s.failTimes {
		shouldFail = false
	}
	if shouldFail {
		s.failures++
	}
	s.mu.Unlock()

	if shouldFail {
		if s.transient {
			return &graph.TransientError{Op: "upsert_nodes", Err: fmt.Errorf("connection reset")}
		}
		return fmt.Errorf("constraint violation")
	}
	return s.MemoryStore.UpsertNodes(ctx, label, nodes)
}

func TestIngestRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{
		MemoryStore: graph.NewMemoryStore(),
		failID:      "attack-pattern--1",
		transient:   true,
		failTimes:   2,
	}
	o := newTestOrchestrator(store)
	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "Flaky"),
	})

	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.NodesWritten != 1 {
		t.Fatalf("nodes written after retry: want=1 got=%d", result.NodesWritten)
	}
	if result.Errors != 0 {
		t.Fatalf("errors: want=0 got=%d", result.Errors)
	}
	if store.failures != 2 {
		t.Fatalf("transient failures consumed: want=2 got=%d", store.failures)
	}
}

func TestIngestContinuesAfterExhaustedBatch(t *testing.T) {
	store := &flakyStore{
		MemoryStore: graph.NewMemoryStore(),
		failID:      "attack-pattern--25",
		transient:   true,
	}
	o := newTestOrchestrator(store)

	objects := make([]map[string]any, 0, 100)
	for i := 0; i < 100; i++ {
		objects = append(objects, attackPattern(
			fmt.Sprintf("attack-pattern--%d", i),
			fmt.Sprintf("T%04d", i),
			fmt.Sprintf("Technique %d", i),
		))
	}
	src := writeSource(t, "enterprise.json", objects)

	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	// One batch of 10 exhausts its retries; the other 9 batches land.
	if result.NodesWritten != 90 {
		t.Fatalf("nodes written: want=90 got=%d", result.NodesWritten)
	}
	if result.Errors != 1 {
		t.Fatalf("errors: want=1 got=%d", result.Errors)
	}
}

func TestIngestNonTransientFailureIsNotRetried(t *testing.T) {
	store := &flakyStore{
		MemoryStore: graph.NewMemoryStore(),
		failID:      "attack-pattern--1",
		transient:   false,
	}
	o := newTestOrchestrator(store)
	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "Broken"),
	})

	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.NodesWritten != 0 {
		t.Fatalf("nodes written: want=0 got=%d", result.NodesWritten)
	}
	if store.failures != 1 {
		t.Fatalf("non-transient failure must not be retried, saw %d attempts", store.failures)
	}
}

func TestIngestResolvesCrossReferencesOnSecondCatalog(t *testing.T) {
	store := graph.NewMemoryStore()
	o := newTestOrchestrator(store)

	first := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--e1", "T1059", "Command and Scripting Interpreter"),
	})
	second := writeSource(t, "ics.json", []map[string]any{
		attackPattern("attack-pattern--i1", "T1059", "Scripting"),
	})

	result, err := o.Ingest(context.Background(), first, "enterprise")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if result.CrossReferencesCreated != 0 {
		t.Fatalf("single catalog must not cross-reference, got %d", result.CrossReferencesCreated)
	}
	if o.Analysis() != nil {
		t.Fatalf("no analysis expected before a multi-catalog run")
	}

	result, err = o.Ingest(context.Background(), second, "ics")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if result.CrossReferencesCreated != 1 {
		t.Fatalf("cross references created: want=1 got=%d", result.CrossReferencesCreated)
	}
	if store.RelationshipCount("RELATED_TO") != 1 {
		t.Fatalf("RELATED_TO edges: want=1 got=%d", store.RelationshipCount("RELATED_TO"))
	}

	analysis := o.Analysis()
	if analysis == nil || len(analysis.ExactMatches) != 1 {
		t.Fatalf("analysis exact matches: want=1 got=%+v", analysis)
	}
}

// recordingBus collects published events.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.EntityEvent
	fail   bool
}

func (b *recordingBus) Publish(ctx context.Context, ev domain.EntityEvent) error {
	if b.fail {
		return fmt.Errorf("stream unavailable")
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) Consume(ctx context.Context, group, consumer string, handler func(domain.EntityEvent) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *recordingBus) Close() error { return nil }

func TestIngestPublishesEventsAfterCommit(t *testing.T) {
	store := graph.NewMemoryStore()
	bus := &recordingBus{}
	log := logger.NewNop()
	cfg := testConfig()
	o := NewOrchestrator(log, cfg, mapping.New(), resolve.New(log, cfg.Resolver), store, bus, nil)

	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "One"),
		attackPattern("attack-pattern--2", "T1002", "Two"),
		usesRel("relationship--1", "attack-pattern--1", "attack-pattern--2"),
	})
	if _, err := o.Ingest(context.Background(), src, "enterprise"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	var nodeEvents, relEvents int
	for _, ev := range bus.events {
		switch ev.EventType {
		case domain.EventNodeUpserted:
			nodeEvents++
		case domain.EventRelationshipUpserted:
			relEvents++
		}
	}
	if nodeEvents != 2 || relEvents != 1 {
		t.Fatalf("events: want 2 node / 1 relationship, got %d/%d", nodeEvents, relEvents)
	}
}

func TestIngestEventFailureIsNonFatal(t *testing.T) {
	store := graph.NewMemoryStore()
	bus := &recordingBus{fail: true}
	log := logger.NewNop()
	cfg := testConfig()
	o := NewOrchestrator(log, cfg, mapping.New(), resolve.New(log, cfg.Resolver), store, bus, nil)

	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "One"),
	})
	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.NodesWritten != 1 {
		t.Fatalf("graph write must survive publish failure, nodes=%d", result.NodesWritten)
	}
	if result.Errors != 1 {
		t.Fatalf("publish failure must be counted, errors=%d", result.Errors)
	}
}

// fakeRawStore records archived payloads.
type fakeRawStore struct {
	mu       sync.Mutex
	payloads map[string][]byte
	fail     bool
}

func (f *fakeRawStore) StoreRaw(ctx context.Context, catalog string, payload []byte) (string, error) {
	if f.fail {
		return "", fmt.Errorf("bucket unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payloads == nil {
		f.payloads = make(map[string][]byte)
	}
	f.payloads[catalog] = payload
	return "gs://test/raw/" + catalog, nil
}

func TestIngestArchivesRawPayload(t *testing.T) {
	store := graph.NewMemoryStore()
	raw := &fakeRawStore{}
	log := logger.NewNop()
	cfg := testConfig()
	o := NewOrchestrator(log, cfg, mapping.New(), resolve.New(log, cfg.Resolver), store, nil, raw)

	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "One"),
	})
	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.RawURI != "gs://test/raw/enterprise" {
		t.Fatalf("raw uri: got %q", result.RawURI)
	}
	if len(raw.payloads["enterprise"]) == 0 {
		t.Fatalf("raw payload not archived")
	}
}

func TestIngestArchiveFailureIsNonFatal(t *testing.T) {
	store := graph.NewMemoryStore()
	raw := &fakeRawStore{fail: true}
	log := logger.NewNop()
	cfg := testConfig()
	o := NewOrchestrator(log, cfg, mapping.New(), resolve.New(log, cfg.Resolver), store, nil, raw)

	src := writeSource(t, "enterprise.json", []map[string]any{
		attackPattern("attack-pattern--1", "T1001", "One"),
	})
	result, err := o.Ingest(context.Background(), src, "enterprise")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.RawURI != "" {
		t.Fatalf("raw uri must be empty on archive failure, got %q", result.RawURI)
	}
	if result.NodesWritten != 1 {
		t.Fatalf("run must continue after archive failure")
	}
}
