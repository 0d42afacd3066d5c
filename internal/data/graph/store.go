// Package graph defines the property-graph write boundary used by the
// ingestion pipeline and its Neo4j implementation.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/algobrain/threatgraph-backend/internal/domain"
)

// Store is the pipeline's view of the graph database. Writes are batched and
// upsert-by-id: create-if-absent, merge-properties-if-present. Each call is
// expected to be all-or-nothing.
type Store interface {
	// EnsureSchema creates uniqueness constraints for the given labels.
	// Best-effort: restricted users may not be allowed to.
	EnsureSchema(ctx context.Context, labels []string) error
	UpsertNodes(ctx context.Context, label string, nodes []*domain.Node) error
	UpsertRelationships(ctx context.Context, kind string, rels []*domain.Relationship) error
	// LabelCounts enumerates node labels with their counts, for run
	// verification and reporting.
	LabelCounts(ctx context.Context) (map[string]int64, error)
}

// TransientError wraps a store failure that may succeed on retry. The
// orchestrator retries these up to its configured bound; anything else fails
// the batch immediately.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("graph: transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
