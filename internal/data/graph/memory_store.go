package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/algobrain/threatgraph-backend/internal/domain"
)

// MemoryStore is an in-process Store used when no graph database is
// configured (dev) and as the test double for the pipeline. It mirrors the
// upsert-by-id semantics of the Neo4j store, including dropping
// relationships whose endpoints do not exist.
type MemoryStore struct {
	mu    sync.Mutex
	nodes map[string]map[string]*domain.Node // label -> id -> node
	rels  map[string]map[string]*domain.Relationship
	ids   map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]*domain.Node),
		rels:  make(map[string]map[string]*domain.Relationship),
		ids:   make(map[string]struct{}),
	}
}

func (s *MemoryStore) EnsureSchema(ctx context.Context, labels []string) error { return nil }

func (s *MemoryStore) UpsertNodes(ctx context.Context, label string, nodes []*domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.nodes[label]
	if byID == nil {
		byID = make(map[string]*domain.Node)
		s.nodes[label] = byID
	}
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if existing, ok := byID[n.ID]; ok {
			merged := *n
			if merged.Properties == nil {
				merged.Properties = map[string]any{}
			}
			for k, v := range existing.Properties {
				if _, present := merged.Properties[k]; !present {
					merged.Properties[k] = v
				}
			}
			byID[n.ID] = &merged
		} else {
			cp := *n
			byID[n.ID] = &cp
		}
		s.ids[n.ID] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) UpsertRelationships(ctx context.Context, kind string, rels []*domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.rels[kind]
	if byID == nil {
		byID = make(map[string]*domain.Relationship)
		s.rels[kind] = byID
	}
	for _, r := range rels {
		if r == nil || r.ID == "" {
			continue
		}
		if _, ok := s.ids[r.SourceRef]; !ok {
			continue
		}
		if _, ok := s.ids[r.TargetRef]; !ok {
			continue
		}
		cp := *r
		byID[r.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) LabelCounts(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(s.nodes))
	for label, byID := range s.nodes {
		out[label] = int64(len(byID))
	}
	return out, nil
}

// Node returns a stored node for test assertions.
func (s *MemoryStore) Node(label, id string) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[label][id]
	if !ok {
		return nil, fmt.Errorf("memory store: no %s node %q", label, id)
	}
	cp := *n
	return &cp, nil
}

// RelationshipCount returns the number of stored edges of one kind.
func (s *MemoryStore) RelationshipCount(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rels[kind])
}
