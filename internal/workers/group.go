package workers

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

// Worker is a long-lived loop that runs until its context is cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// RunGroup runs all workers and blocks until ctx is cancelled or one of them
// fails with a non-cancellation error. Cancellation of one cancels the rest.
func RunGroup(ctx context.Context, log *logger.Logger, ws ...Worker) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range ws {
		w := w
		log.Info("starting worker", "worker", w.Name())
		g.Go(func() error {
			err := w.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("worker exited", "worker", w.Name(), "error", err)
				return err
			}
			log.Info("worker stopped", "worker", w.Name())
			return nil
		})
	}
	return g.Wait()
}
