package workers

import (
	"context"
	"strings"

	"github.com/algobrain/threatgraph-backend/internal/clients/redis"
	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
	"github.com/algobrain/threatgraph-backend/internal/search"
)

const indexerGroup = "indexer"

type Indexer struct {
	log      *logger.Logger
	bus      redis.EventBus
	index    search.Index
	consumer string
	runCtx   context.Context
}

func NewIndexer(log *logger.Logger, bus redis.EventBus, index search.Index, consumer string) *Indexer {
	if strings.TrimSpace(consumer) == "" {
		consumer = "indexer-1"
	}
	return &Indexer{
		log:      log.With("worker", "Indexer"),
		bus:      bus,
		index:    index,
		consumer: consumer,
	}
}

func (w *Indexer) Name() string { return "indexer" }

func (w *Indexer) Run(ctx context.Context) error {
	w.runCtx = ctx
	return w.bus.Consume(ctx, indexerGroup, w.consumer, w.handle)
}

func (w *Indexer) handle(ev domain.EntityEvent) error {
	if ev.EventType != domain.EventNodeUpserted {
		return nil
	}
	ctx := w.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	return w.index.IndexDocuments(ctx, []search.Document{{
		ID:            ev.EntityID,
		Label:         ev.Label,
		Content:       ev.Content,
		SourceCatalog: ev.SourceCatalog,
	}})
}
