// Package ingest drives the end-to-end pipeline: load a source catalog, map
// it into the canonical model, write the graph in bounded batches, publish
// per-entity events, and resolve cross-catalog references once at least two
// catalogs have been ingested.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/algobrain/threatgraph-backend/internal/clients/redis"
	"github.com/algobrain/threatgraph-backend/internal/data/graph"
	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/enrich"
	"github.com/algobrain/threatgraph-backend/internal/mapping"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
	"github.com/algobrain/threatgraph-backend/internal/resolve"
)

type Stage string

const (
	StageLoading                   Stage = "loading"
	StageMapping                   Stage = "mapping"
	StageWritingNodes              Stage = "writing_nodes"
	StageWritingRelationships      Stage = "writing_relationships"
	StageResolvingCrossReferences  Stage = "resolving_cross_references"
	StageReporting                 Stage = "reporting"
	StageDone                      Stage = "done"
	StageFailed                    Stage = "failed"
)

// RunError is a fatal pipeline failure, tagged with the stage it happened
// in. Work already committed to the graph store is not rolled back.
type RunError struct {
	Stage Stage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("ingest: run failed in stage %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// RawStore archives the unmodified source payload before mapping. Optional;
// archiving failures never fail a run.
type RawStore interface {
	StoreRaw(ctx context.Context, catalog string, payload []byte) (string, error)
}

// Orchestrator owns one pipeline's in-memory state. Catalog accumulation is
// exclusive to the instance; the graph store is the only shared resource and
// is protected by its own upsert semantics.
type Orchestrator struct {
	log      *logger.Logger
	cfg      Config
	mapper   *mapping.Mapper
	resolver *resolve.Resolver
	store    graph.Store
	bus        redis.EventBus     // nil disables event publication
	raw        RawStore           // nil disables raw archiving
	classifier *enrich.Classifier // nil disables category tagging
	stats      *domain.PipelineStats

	mu           sync.Mutex
	catalogs     map[string][]*domain.Node
	catalogOrder []string
	nodeIDs      map[string]struct{}
	analysis     *domain.CrossReferenceAnalysis
	schemaReady  bool
}

func NewOrchestrator(
	log *logger.Logger,
	cfg Config,
	mapper *mapping.Mapper,
	resolver *resolve.Resolver,
	store graph.Store,
	bus redis.EventBus,
	raw RawStore,
) *Orchestrator {
	return &Orchestrator{
		log:      log.With("component", "IngestOrchestrator"),
		cfg:      cfg,
		mapper:   mapper,
		resolver: resolver,
		store:    store,
		bus:      bus,
		raw:      raw,
		stats:    &domain.PipelineStats{},
		catalogs: make(map[string][]*domain.Node),
		nodeIDs:  make(map[string]struct{}),
	}
}

// UseClassifier enables category tagging of mapped nodes before they are
// written.
func (o *Orchestrator) UseClassifier(c *enrich.Classifier) { o.classifier = c }

func (o *Orchestrator) Stats() domain.StatsSnapshot { return o.stats.Snapshot() }
func (o *Orchestrator) ResetStats()                 { o.stats.Reset() }

// Analysis returns the latest cross-reference report, nil before the first
// multi-catalog run.
func (o *Orchestrator) Analysis() *domain.CrossReferenceAnalysis {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.analysis
}

func (o *Orchestrator) LabelCounts(ctx context.Context) (map[string]int64, error) {
	return o.store.LabelCounts(ctx)
}

// Ingest runs the full pipeline for one source catalog. On fatal failure the
// returned result still carries the statistics accumulated so far.
func (o *Orchestrator) Ingest(ctx context.Context, source, catalogName string) (*domain.IngestionResult, error) {
	started := time.Now().UTC()
	before := o.stats.Snapshot()
	result := &domain.IngestionResult{Dataset: catalogName, StartedAt: started}

	fail := func(stage Stage, err error) (*domain.IngestionResult, error) {
		o.finishResult(result, before)
		o.log.Error("run failed", "dataset", catalogName, "stage", string(stage), "error", err)
		return result, &RunError{Stage: stage, Err: err}
	}

	o.log.Info("starting ingestion", "dataset", catalogName, "source", source)

	// Loading
	records, rawPayload, err := LoadSource(ctx, source)
	if err != nil {
		return fail(StageLoading, err)
	}
	result.RawURI = o.archiveRaw(ctx, catalogName, rawPayload)

	if err := o.ensureSchema(ctx); err != nil {
		o.log.Warn("schema bootstrap failed (continuing)", "error", err)
	}

	// Mapping
	nodes, rels := o.mapRecords(records, catalogName)
	if o.classifier != nil {
		tagged := o.classifier.Apply(nodes)
		o.log.Debug("category tagging complete", "dataset", catalogName, "tagged", tagged)
	}
	o.registerCatalog(catalogName, nodes)

	// WritingNodes
	written, err := o.writeNodes(ctx, nodes)
	result.NodesWritten = written
	if err != nil {
		return fail(StageWritingNodes, err)
	}

	// WritingRelationships
	written, err = o.writeRelationships(ctx, rels, false)
	result.RelationshipsWritten = written
	if err != nil {
		return fail(StageWritingRelationships, err)
	}

	// ResolvingCrossReferences
	if o.catalogCount() >= 2 {
		created, err := o.resolveCrossReferences(ctx, catalogName)
		result.CrossReferencesCreated = created
		if err != nil {
			// Resolution failure aborts only this phase; everything
			// committed stays.
			o.log.Error("cross-reference phase failed", "dataset", catalogName, "error", err)
			o.stats.AddErrors(1)
		}
	}

	// Reporting
	o.finishResult(result, before)
	o.report(ctx, result)
	return result, nil
}

func (o *Orchestrator) mapRecords(records []domain.SourceRecord, catalogName string) ([]*domain.Node, []*domain.Relationship) {
	var nodes []*domain.Node
	var rels []*domain.Relationship

	for _, rec := range records {
		if rec.Kind() == "relationship" {
			rel, err := o.mapper.MapRelationship(rec, catalogName)
			if err != nil {
				o.log.Warn("skipping record", "error", err)
				o.stats.AddErrors(1)
				continue
			}
			rels = append(rels, rel)
			continue
		}
		node, err := o.mapper.MapNode(rec, catalogName)
		if err != nil {
			o.log.Warn("skipping record", "error", err)
			o.stats.AddErrors(1)
			continue
		}
		nodes = append(nodes, node)
	}

	o.log.Info("mapping complete",
		"dataset", catalogName,
		"records", len(records),
		"nodes", len(nodes),
		"relationships", len(rels),
	)
	return nodes, rels
}

func (o *Orchestrator) writeNodes(ctx context.Context, nodes []*domain.Node) (int, error) {
	byLabel := make(map[string][]*domain.Node)
	for _, n := range nodes {
		byLabel[n.Label] = append(byLabel[n.Label], n)
	}

	written := 0
	for _, label := range sortedKeys(byLabel) {
		group := byLabel[label]
		for start := 0; start < len(group); start += o.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			end := start + o.cfg.BatchSize
			if end > len(group) {
				end = len(group)
			}
			batch := group[start:end]

			if err := o.writeNodeBatch(ctx, label, batch); err != nil {
				o.log.Error("node batch failed after retries", "label", label, "size", len(batch), "error", err)
				o.stats.AddErrors(1)
				continue
			}
			written += len(batch)
			o.stats.AddNodes(len(batch))
			o.publishNodeEvents(ctx, batch)
		}
	}
	return written, nil
}

func (o *Orchestrator) writeRelationships(ctx context.Context, rels []*domain.Relationship, crossRef bool) (int, error) {
	byKind := make(map[string][]*domain.Relationship)
	for _, r := range rels {
		if !o.endpointsExist(r) {
			o.log.Warn("dropping relationship with missing endpoint",
				"relationship_id", r.ID,
				"source_ref", r.SourceRef,
				"target_ref", r.TargetRef,
			)
			o.stats.AddErrors(1)
			continue
		}
		byKind[r.CanonicalKind] = append(byKind[r.CanonicalKind], r)
	}

	written := 0
	for _, kind := range sortedKeys(byKind) {
		group := byKind[kind]
		for start := 0; start < len(group); start += o.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			end := start + o.cfg.BatchSize
			if end > len(group) {
				end = len(group)
			}
			batch := group[start:end]

			if err := o.writeRelationshipBatch(ctx, kind, batch); err != nil {
				o.log.Error("relationship batch failed after retries", "kind", kind, "size", len(batch), "error", err)
				o.stats.AddErrors(1)
				continue
			}
			written += len(batch)
			if crossRef {
				o.stats.AddCrossReferences(len(batch))
			} else {
				o.stats.AddRelationships(len(batch))
			}
			o.publishRelationshipEvents(ctx, batch)
		}
	}
	return written, nil
}

func (o *Orchestrator) resolveCrossReferences(ctx context.Context, current string) (int, error) {
	o.mu.Lock()
	currentNodes := o.catalogs[current]
	others := make([]string, 0, len(o.catalogOrder))
	for _, name := range o.catalogOrder {
		if name != current {
			others = append(others, name)
		}
	}
	o.mu.Unlock()

	created := 0
	merged := &domain.CrossReferenceAnalysis{}
	for _, other := range others {
		o.mu.Lock()
		otherNodes := o.catalogs[other]
		o.mu.Unlock()

		analysis, err := o.resolver.Resolve(otherNodes, currentNodes)
		if err != nil {
			return created, err
		}
		mergeAnalysis(merged, analysis)

		refs := analysis.CrossReferences()
		rels := make([]*domain.Relationship, 0, len(refs))
		for _, ref := range refs {
			rel := ref.Relationship()
			rels = append(rels, &rel)
		}
		n, err := o.writeRelationships(ctx, rels, true)
		if err != nil {
			return created, err
		}
		created += n
	}

	o.mu.Lock()
	o.analysis = merged
	o.mu.Unlock()
	return created, nil
}

func (o *Orchestrator) writeNodeBatch(ctx context.Context, label string, batch []*domain.Node) error {
	var err error
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if werr := o.waitRetry(ctx); werr != nil {
				return werr
			}
			o.log.Warn("retrying node batch", "label", label, "attempt", attempt)
		}
		if err = o.store.UpsertNodes(ctx, label, batch); err == nil {
			return nil
		}
		if !graph.IsTransient(err) {
			return err
		}
	}
	return err
}

func (o *Orchestrator) writeRelationshipBatch(ctx context.Context, kind string, batch []*domain.Relationship) error {
	var err error
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if werr := o.waitRetry(ctx); werr != nil {
				return werr
			}
			o.log.Warn("retrying relationship batch", "kind", kind, "attempt", attempt)
		}
		if err = o.store.UpsertRelationships(ctx, kind, batch); err == nil {
			return nil
		}
		if !graph.IsTransient(err) {
			return err
		}
	}
	return err
}

func (o *Orchestrator) publishNodeEvents(ctx context.Context, batch []*domain.Node) {
	if o.bus == nil {
		return
	}
	for _, n := range batch {
		if err := o.bus.Publish(ctx, domain.NodeEvent(n)); err != nil {
			// Graph write already committed; downstream stores reconcile
			// eventually.
			o.log.Warn("event publish failed", "entity_id", n.ID, "error", err)
			o.stats.AddErrors(1)
		}
	}
}

func (o *Orchestrator) publishRelationshipEvents(ctx context.Context, batch []*domain.Relationship) {
	if o.bus == nil {
		return
	}
	for _, r := range batch {
		if err := o.bus.Publish(ctx, domain.RelationshipEvent(r)); err != nil {
			o.log.Warn("event publish failed", "entity_id", r.ID, "error", err)
			o.stats.AddErrors(1)
		}
	}
}

func (o *Orchestrator) archiveRaw(ctx context.Context, catalogName string, payload []byte) string {
	if o.raw == nil {
		return ""
	}
	uri, err := o.raw.StoreRaw(ctx, catalogName, payload)
	if err != nil {
		o.log.Warn("raw payload archive failed (continuing)", "dataset", catalogName, "error", err)
		return ""
	}
	o.log.Info("raw payload archived", "dataset", catalogName, "uri", uri)
	return uri
}

func (o *Orchestrator) ensureSchema(ctx context.Context) error {
	o.mu.Lock()
	ready := o.schemaReady
	o.schemaReady = true
	o.mu.Unlock()
	if ready {
		return nil
	}
	return o.store.EnsureSchema(ctx, o.mapper.Labels())
}

func (o *Orchestrator) registerCatalog(name string, nodes []*domain.Node) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.catalogs[name]; !ok {
		o.catalogOrder = append(o.catalogOrder, name)
	}
	o.catalogs[name] = nodes
	for _, n := range nodes {
		o.nodeIDs[n.ID] = struct{}{}
	}
}

func (o *Orchestrator) catalogCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.catalogs)
}

func (o *Orchestrator) endpointsExist(r *domain.Relationship) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, src := o.nodeIDs[r.SourceRef]
	_, dst := o.nodeIDs[r.TargetRef]
	return src && dst
}

func (o *Orchestrator) waitRetry(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.cfg.RetryDelay):
		return nil
	}
}

func (o *Orchestrator) finishResult(result *domain.IngestionResult, before domain.StatsSnapshot) {
	after := o.stats.Snapshot()
	result.Errors = int(after.Errors - before.Errors)
	result.FinishedAt = time.Now().UTC()
}

func (o *Orchestrator) report(ctx context.Context, result *domain.IngestionResult) {
	fields := []interface{}{
		"dataset", result.Dataset,
		"nodes_written", result.NodesWritten,
		"relationships_written", result.RelationshipsWritten,
		"cross_references_created", result.CrossReferencesCreated,
		"errors", result.Errors,
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}
	if counts, err := o.store.LabelCounts(ctx); err == nil {
		fields = append(fields, "graph_labels", len(counts))
	}
	o.log.Info("ingestion complete", fields...)
}

func mergeAnalysis(dst, src *domain.CrossReferenceAnalysis) {
	dst.ExactMatches = append(dst.ExactMatches, src.ExactMatches...)
	dst.AliasMatches = append(dst.AliasMatches, src.AliasMatches...)
	dst.FuzzyMatches = append(dst.FuzzyMatches, src.FuzzyMatches...)
	dst.PlatformIntersections = append(dst.PlatformIntersections, src.PlatformIntersections...)
	dst.TacticMappings = append(dst.TacticMappings, src.TacticMappings...)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
