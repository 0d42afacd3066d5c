package search

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is a naive substring-match index for dev runs and tests.
type MemoryIndex struct {
	mu   sync.Mutex
	docs map[string]Document
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]Document)}
}

func (m *MemoryIndex) IndexDocuments(ctx context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" {
			continue
		}
		m.docs[doc.ID] = doc
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(strings.TrimSpace(query))

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Hit
	for id, doc := range m.docs {
		name := strings.ToLower(doc.Name)
		content := strings.ToLower(doc.Content)
		switch {
		case q == "":
		case strings.Contains(name, q):
			out = append(out, Hit{ID: id, Score: 2})
		case strings.Contains(content, q):
			out = append(out, Hit{ID: id, Score: 1})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryIndex) DeleteDocuments(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}
