// Package search maintains a full-text index of graph entities so analysts
// can look nodes up by name or description without touching the graph.
package search

import "context"

type Document struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Name          string `json:"name"`
	Content       string `json:"content"`
	SourceCatalog string `json:"source_catalog"`
}

type Hit struct {
	ID    string
	Score float64
}

type Index interface {
	IndexDocuments(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	DeleteDocuments(ctx context.Context, ids []string) error
}
