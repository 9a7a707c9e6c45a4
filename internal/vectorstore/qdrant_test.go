package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeQdrant implements the slice of the Qdrant REST API the index uses,
// scoring by dot product over the stored points.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[uint64]Point
	healthy     bool
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: make(map[string]map[uint64]Point), healthy: true}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/healthz" {
		if !f.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/collections/"), "/")
	name := parts[0]
	points, exists := f.collections[name]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		if !exists {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points_count": len(points)}})
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.collections[name] = make(map[uint64]Point)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		delete(f.collections, name)
	case !exists:
		http.NotFound(w, r)
	case len(parts) == 2 && parts[1] == "points" && r.Method == http.MethodPut:
		var body struct {
			Points []Point `json:"points"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			points[p.ID] = p
		}
	case len(parts) == 3 && parts[2] == "delete":
		var body struct {
			Points []uint64 `json:"points"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.Points {
			delete(points, id)
		}
	case len(parts) == 3 && parts[2] == "search":
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
			Filter *Filter   `json:"filter"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		var results []SearchResult
		for _, p := range points {
			if body.Filter != nil && p.Payload["content_type"] != body.Filter.Must[0].Match.Value {
				continue
			}
			var dot float64
			for i := range p.Vector {
				dot += float64(p.Vector[i] * body.Vector[i])
			}
			results = append(results, SearchResult{ID: p.ID, Score: dot, Payload: p.Payload})
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		if len(results) > body.Limit {
			results = results[:body.Limit]
		}
		json.NewEncoder(w).Encode(map[string]any{"result": results})
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func TestQdrantIndex(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeQdrant(t)
	idx := NewQdrantIndex(NewQdrantClient(srv.URL, 2), "recall_test")

	if err := idx.Probe(ctx); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if _, err := idx.Query(ctx, []float32{1, 0}, "", 3); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady before rebuild, got %v", err)
	}

	// a stale point from a previous process is dropped by the rebuild
	fake.collections["recall_test"][99] = Point{ID: 99, Vector: []float32{1, 0}}

	err := idx.Rebuild(ctx, loaded(
		Entry{ID: 1, ContentID: "a", ContentType: "doc", Vector: []float32{1, 0}},
		Entry{ID: 2, ContentID: "b", ContentType: "note", Vector: []float32{0, 1}},
		Entry{ID: 3, ContentID: "c", ContentType: "doc", Vector: []float32{0, 0}},
	))
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n, _ := idx.Len(ctx); n != 2 {
		t.Fatalf("expected 2 points, got %d", n)
	}

	hits, err := idx.Query(ctx, []float32{1, 0}, "doc", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].FingerprintID != 1 {
		t.Fatalf("expected only fingerprint 1, got %+v", hits)
	}

	if err := idx.Upsert(ctx, Entry{ID: 5, ContentID: "e", ContentType: "doc", Vector: []float32{0.5, 0.5}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Delete(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	hits, _ = idx.Query(ctx, []float32{1, 0}, "doc", 5)
	if len(hits) != 1 || hits[0].FingerprintID != 5 {
		t.Fatalf("expected only fingerprint 5, got %+v", hits)
	}

	t.Run("rebuild replays writes made during load", func(t *testing.T) {
		err := idx.Rebuild(ctx, func(ctx context.Context) ([]Entry, error) {
			snapshot := []Entry{{ID: 5, ContentID: "e", ContentType: "doc", Vector: []float32{0.5, 0.5}}}
			if err := idx.Delete(ctx, 5); err != nil {
				return nil, err
			}
			if err := idx.Upsert(ctx, Entry{ID: 7, ContentID: "g", ContentType: "doc", Vector: []float32{1, 0}}); err != nil {
				return nil, err
			}
			return snapshot, nil
		})
		if err != nil {
			t.Fatalf("rebuild: %v", err)
		}
		hits, err := idx.Query(ctx, []float32{1, 0}, "doc", 5)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(hits) != 1 || hits[0].FingerprintID != 7 {
			t.Fatalf("expected only fingerprint 7, got %+v", hits)
		}
	})

	t.Run("probe fails when qdrant is down", func(t *testing.T) {
		fake.mu.Lock()
		fake.healthy = false
		fake.mu.Unlock()
		if err := idx.Probe(ctx); err == nil {
			t.Fatal("expected probe error")
		}
	})
}
