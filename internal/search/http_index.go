package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

type httpIndex struct {
	log     *logger.Logger
	baseURL string
	index   string
	http    *http.Client
}

// NewHTTPIndexFromEnv returns (nil, nil) when SEARCH_URL is unset; search
// indexing is optional.
func NewHTTPIndexFromEnv(log *logger.Logger) (Index, error) {
	baseURL := strings.TrimSpace(os.Getenv("SEARCH_URL"))
	if baseURL == "" {
		log.Warn("SEARCH_URL not set; search indexing disabled")
		return nil, nil
	}
	index := strings.TrimSpace(os.Getenv("SEARCH_INDEX"))
	if index == "" {
		index = "entities"
	}

	s := &httpIndex{
		log:     log.With("service", "SearchIndex"),
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	log.Info("search index initialized", "url", s.baseURL, "index", s.index)
	return s, nil
}

// IndexDocuments issues one bulk request; upserts are keyed by document ID so
// re-indexing the same entity replaces its previous document.
func (s *httpIndex) IndexDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" {
			return fmt.Errorf("search: document id is required")
		}
		action := map[string]any{
			"index": map[string]any{"_index": s.index, "_id": doc.ID},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("search: encode bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("search: encode bulk document: %w", err)
		}
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if err := s.do(ctx, http.MethodPost, "/_bulk", "application/x-ndjson", &buf, &result); err != nil {
		return err
	}
	if result.Errors {
		return fmt.Errorf("search: bulk indexing reported item failures")
	}
	return nil
}

func (s *httpIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"name^2", "content"},
			},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("search: encode query: %w", err)
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID    string  `json:"_id"`
				Score float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	path := "/" + s.index + "/_search"
	if err := s.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}

	out := make([]Hit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		out = append(out, Hit{ID: h.ID, Score: h.Score})
	}
	return out, nil
}

func (s *httpIndex) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		action := map[string]any{
			"delete": map[string]any{"_index": s.index, "_id": id},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("search: encode bulk delete: %w", err)
		}
	}
	if buf.Len() == 0 {
		return nil
	}
	return s.do(ctx, http.MethodPost, "/_bulk", "application/x-ndjson", &buf, nil)
}

func (s *httpIndex) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return fmt.Errorf("search: read response: %w", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("search: http status=%d body=%q", resp.StatusCode, truncateBody(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("search: decode response: %w", err)
	}
	return nil
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
