package search

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

func newTestIndex(t *testing.T, srv *httptest.Server) Index {
	t.Helper()
	t.Setenv("SEARCH_URL", srv.URL)
	t.Setenv("SEARCH_INDEX", "entities")
	idx, err := NewHTTPIndexFromEnv(logger.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPIndexFromEnv: %v", err)
	}
	return idx
}

func TestHTTPIndexDisabledWithoutURL(t *testing.T) {
	t.Setenv("SEARCH_URL", "")
	idx, err := NewHTTPIndexFromEnv(logger.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPIndexFromEnv: %v", err)
	}
	if idx != nil {
		t.Fatalf("want nil index when SEARCH_URL unset")
	}
}

func TestHTTPIndexBulkFormat(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_bulk" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"errors": false}`))
	}))
	defer srv.Close()

	idx := newTestIndex(t, srv)
	err := idx.IndexDocuments(context.Background(), []Document{
		{ID: "a", Label: "AttackPattern", Name: "One", Content: "first"},
		{ID: "b", Label: "Malware", Name: "Two", Content: "second"},
	})
	if err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}

	var lines int
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			lines++
		}
	}
	// One action line plus one document line per document.
	if lines != 4 {
		t.Fatalf("bulk lines: want=4 got=%d", lines)
	}
}

func TestHTTPIndexBulkItemFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors": true}`))
	}))
	defer srv.Close()

	idx := newTestIndex(t, srv)
	err := idx.IndexDocuments(context.Background(), []Document{{ID: "a"}})
	if err == nil {
		t.Fatalf("expected error when bulk response reports item failures")
	}
}

func TestHTTPIndexSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entities/_search" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"hits": {"hits": [
			{"_id": "a", "_score": 2.5},
			{"_id": "b", "_score": 1.0}
		]}}`))
	}))
	defer srv.Close()

	idx := newTestIndex(t, srv)
	hits, err := idx.Search(context.Background(), "emotet", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a" || hits[0].Score != 2.5 {
		t.Fatalf("hits: %+v", hits)
	}
}

func TestHTTPIndexErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	idx := newTestIndex(t, srv)
	if _, err := idx.Search(context.Background(), "x", 5); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}
