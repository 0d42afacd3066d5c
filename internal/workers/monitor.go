package workers

import (
	"context"
	"time"

	"github.com/algobrain/threatgraph-backend/internal/domain"
	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

// Monitor periodically logs pipeline counters so slow or stalled ingestion
// shows up in the logs without a metrics backend.
type Monitor struct {
	log      *logger.Logger
	stats    func() domain.StatsSnapshot
	interval time.Duration
}

func NewMonitor(log *logger.Logger, stats func() domain.StatsSnapshot, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		log:      log.With("worker", "Monitor"),
		stats:    stats,
		interval: interval,
	}
}

func (w *Monitor) Name() string { return "monitor" }

func (w *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last domain.StatsSnapshot
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := w.stats()
			if snap == last {
				continue
			}
			w.log.Info("pipeline stats",
				"nodes_processed", snap.NodesProcessed,
				"relationships_processed", snap.RelationshipsProcessed,
				"cross_references_created", snap.CrossReferencesCreated,
				"errors", snap.Errors,
			)
			last = snap
		}
	}
}
