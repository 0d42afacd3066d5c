package domain

import (
	"sync/atomic"
	"time"
)

// PipelineStats holds the run counters. The orchestrator writes them while
// the monitoring worker reads them concurrently, hence atomics.
type PipelineStats struct {
	nodesProcessed         atomic.Int64
	relationshipsProcessed atomic.Int64
	crossReferencesCreated atomic.Int64
	errors                 atomic.Int64
}

type StatsSnapshot struct {
	NodesProcessed         int64 `json:"nodes_processed"`
	RelationshipsProcessed int64 `json:"relationships_processed"`
	CrossReferencesCreated int64 `json:"cross_references_created"`
	Errors                 int64 `json:"errors"`
}

func (s *PipelineStats) AddNodes(n int)          { s.nodesProcessed.Add(int64(n)) }
func (s *PipelineStats) AddRelationships(n int)  { s.relationshipsProcessed.Add(int64(n)) }
func (s *PipelineStats) AddCrossReferences(n int) { s.crossReferencesCreated.Add(int64(n)) }
func (s *PipelineStats) AddErrors(n int)         { s.errors.Add(int64(n)) }

func (s *PipelineStats) Reset() {
	s.nodesProcessed.Store(0)
	s.relationshipsProcessed.Store(0)
	s.crossReferencesCreated.Store(0)
	s.errors.Store(0)
}

func (s *PipelineStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		NodesProcessed:         s.nodesProcessed.Load(),
		RelationshipsProcessed: s.relationshipsProcessed.Load(),
		CrossReferencesCreated: s.crossReferencesCreated.Load(),
		Errors:                 s.errors.Load(),
	}
}

// IngestionResult is the per-run summary returned to the caller and exposed
// through the stats endpoint.
type IngestionResult struct {
	Dataset                string    `json:"dataset"`
	RawURI                 string    `json:"raw_uri,omitempty"`
	NodesWritten           int       `json:"nodes_written"`
	RelationshipsWritten   int       `json:"relationships_written"`
	CrossReferencesCreated int       `json:"cross_references_created"`
	Errors                 int       `json:"errors"`
	StartedAt              time.Time `json:"started_at"`
	FinishedAt             time.Time `json:"finished_at"`
}
