package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
	"github.com/algobrain/threatgraph-backend/internal/platform/vector"
)

type fakeQdrant struct {
	t            *testing.T
	distance     string
	upsertBodies []map[string]any
	searchResult string
}

func (f *fakeQdrant) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/readyz":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/collections/entities":
			_, _ = io.WriteString(w, `{"result": {"config": {"params": {"vectors": {"size": 4, "distance": "`+f.distance+`"}}}}, "status": "ok"}`)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/entities/points":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.upsertBodies = append(f.upsertBodies, body)
			_, _ = io.WriteString(w, `{"result": {}, "status": "ok"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/collections/entities/points/search":
			_, _ = io.WriteString(w, f.searchResult)
		default:
			f.t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newFakeStore(t *testing.T, distance string) (vector.Store, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{t: t, distance: distance}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := Config{URL: srv.URL, Collection: "entities", NamespacePrefix: "tg", VectorDim: 4}
	s, err := NewVectorStore(logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	return s, fake
}

func TestUpsertWritesPoints(t *testing.T) {
	s, fake := newFakeStore(t, "Cosine")

	err := s.Upsert(context.Background(), "entities", []vector.Vector{
		{ID: "attack-pattern--1", Values: []float32{1, 0, 0, 0}, Metadata: map[string]any{"label": "AttackPattern"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(fake.upsertBodies) != 1 {
		t.Fatalf("upsert requests: want=1 got=%d", len(fake.upsertBodies))
	}
	points := fake.upsertBodies[0]["points"].([]any)
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	if payload[payloadVectorIDKey] != "attack-pattern--1" {
		t.Fatalf("payload vector id: %v", payload)
	}
	if payload[payloadNamespaceKey] != "tg:entities" {
		t.Fatalf("payload namespace: %v", payload)
	}
}

func TestUpsertIsIdempotentByPointID(t *testing.T) {
	s, fake := newFakeStore(t, "Cosine")
	v := vector.Vector{ID: "a", Values: []float32{1, 0, 0, 0}}

	for i := 0; i < 2; i++ {
		if err := s.Upsert(context.Background(), "ns", []vector.Vector{v}); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}
	first := fake.upsertBodies[0]["points"].([]any)[0].(map[string]any)["id"]
	second := fake.upsertBodies[1]["points"].([]any)[0].(map[string]any)["id"]
	if first != second {
		t.Fatalf("point ids must be deterministic: %v vs %v", first, second)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s, _ := newFakeStore(t, "Cosine")

	err := s.Upsert(context.Background(), "ns", []vector.Vector{{ID: "a", Values: []float32{1, 0}}})
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("want OperationError, got %v", err)
	}
	if opErr.Code != OperationErrorValidation {
		t.Fatalf("code: want=%s got=%s", OperationErrorValidation, opErr.Code)
	}
}

func TestQueryMatchesReturnsPayloadIDs(t *testing.T) {
	s, fake := newFakeStore(t, "Cosine")
	fake.searchResult = `{"result": [
		{"id": "deadbeef", "score": 0.9, "payload": {"` + payloadVectorIDKey + `": "attack-pattern--1"}},
		{"id": "cafebabe", "score": 0.7, "payload": {"` + payloadVectorIDKey + `": "attack-pattern--2"}}
	], "status": "ok"}`

	matches, err := s.QueryMatches(context.Background(), "entities", []float32{1, 0, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches: want=2 got=%d", len(matches))
	}
	if matches[0].ID != "attack-pattern--1" || matches[0].Score != 0.9 {
		t.Fatalf("first match: %+v", matches[0])
	}
}

func TestQueryNormalizesEuclideanScores(t *testing.T) {
	s, fake := newFakeStore(t, "Euclid")
	fake.searchResult = `{"result": [
		{"id": "x", "score": 1.0, "payload": {"` + payloadVectorIDKey + `": "a"}}
	], "status": "ok"}`

	matches, err := s.QueryMatches(context.Background(), "entities", []float32{1, 0, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if got := matches[0].Score; got != 0.5 {
		t.Fatalf("normalized score: want=0.5 got=%v", got)
	}
}

func TestQueryRejectsEmptyVector(t *testing.T) {
	s, _ := newFakeStore(t, "Cosine")
	if _, err := s.QueryMatches(context.Background(), "ns", nil, 10, nil); err == nil {
		t.Fatalf("expected error for empty query vector")
	}
}
