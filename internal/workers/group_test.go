package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

type blockingWorker struct {
	name string
	err  error
}

func (w *blockingWorker) Name() string { return w.name }

func (w *blockingWorker) Run(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunGroupStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunGroup(ctx, logger.NewNop(), &blockingWorker{name: "a"}, &blockingWorker{name: "b"})
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunGroup after cancel: want=nil got=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunGroup did not return after cancel")
	}
}

func TestRunGroupPropagatesWorkerFailure(t *testing.T) {
	boom := errors.New("boom")
	err := RunGroup(context.Background(), logger.NewNop(), &blockingWorker{name: "ok"}, &blockingWorker{name: "bad", err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("RunGroup error: want=%v got=%v", boom, err)
	}
}
