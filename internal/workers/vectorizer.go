// Package workers hosts the long-lived consumers downstream of the event
// stream: vectorization, search indexing, and pipeline monitoring.
package workers

import (
	"context"
	"strings"

	"github.com/algobrain/threatgraph-backend/internal/clients/redis"
	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
	"github.com/algobrain/threatgraph-backend/internal/platform/vector"
)

const vectorizerGroup = "vectorizer"

type Vectorizer struct {
	log       *logger.Logger
	bus       redis.EventBus
	store     vector.Store
	embedder  Embedder
	namespace string
	consumer  string
	runCtx    context.Context
}

func NewVectorizer(log *logger.Logger, bus redis.EventBus, store vector.Store, embedder Embedder, consumer string) *Vectorizer {
	if strings.TrimSpace(consumer) == "" {
		consumer = "vectorizer-1"
	}
	return &Vectorizer{
		log:       log.With("worker", "Vectorizer"),
		bus:       bus,
		store:     store,
		embedder:  embedder,
		namespace: "entities",
		consumer:  consumer,
	}
}

func (w *Vectorizer) Name() string { return "vectorizer" }

// Run blocks until ctx is cancelled. Delivery is at-least-once; the
// deterministic vector ID makes duplicate events harmless.
func (w *Vectorizer) Run(ctx context.Context) error {
	w.runCtx = ctx
	return w.bus.Consume(ctx, vectorizerGroup, w.consumer, w.handle)
}

func (w *Vectorizer) handle(ev domain.EntityEvent) error {
	if ev.EventType != domain.EventNodeUpserted {
		return nil
	}
	content := strings.TrimSpace(ev.Content)
	if content == "" {
		return nil
	}

	ctx := w.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	vecs, err := w.embedder.Embed(ctx, []string{content})
	if err != nil {
		return err
	}
	return w.store.Upsert(ctx, w.namespace, []vector.Vector{{
		ID:     ev.EntityID,
		Values: vecs[0],
		Metadata: map[string]any{
			"label":          ev.Label,
			"source_catalog": ev.SourceCatalog,
		},
	}})
}
