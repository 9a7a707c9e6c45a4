package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
	"github.com/iammorganparry/clive/apps/recall/internal/vectorstore"
)

// Index is a native top-K backend. Query returns candidate fingerprints for
// one content type ("" for all), best first.
type Index interface {
	Ready() bool
	Query(ctx context.Context, vector []float32, contentType string, k int) ([]vectorstore.Hit, error)
}

// FingerprintSource is the part of the fingerprint store the searcher reads.
type FingerprintSource interface {
	Scan(ctx context.Context, contentTypes ...string) ([]models.Fingerprint, error)
	GetMany(ctx context.Context, ids []int64) ([]models.Fingerprint, error)
}

// Query describes one similarity search. ContentTypes empty means every type.
type Query struct {
	Vector       []float32
	ContentTypes []string
	Limit        int
	Threshold    float64
}

// Match is one search result.
type Match struct {
	Fingerprint models.Fingerprint
	Similarity  float64
}

// Searcher ranks stored fingerprints by cosine similarity to a query
// vector. It asks the index for candidates first and falls back to a full
// linear scan whenever the index cannot serve the query; both paths return
// the same matches up to tie order.
type Searcher struct {
	fingerprints FingerprintSource
	index        Index
	defaultLimit int
	logger       *slog.Logger
}

// NewSearcher creates a searcher. index may be nil.
func NewSearcher(fingerprints FingerprintSource, index Index, defaultLimit int, logger *slog.Logger) *Searcher {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &Searcher{
		fingerprints: fingerprints,
		index:        index,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// Search returns at most q.Limit matches with similarity >= q.Threshold,
// sorted by similarity descending.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Match, error) {
	if q.Limit <= 0 {
		q.Limit = s.defaultLimit
	}

	if s.canUseIndex(q) {
		matches, err := s.searchIndex(ctx, q)
		if err == nil {
			return matches, nil
		}
		s.logger.Debug("index search failed, falling back to linear scan", "error", err)
	}
	return s.SearchLinear(ctx, q)
}

// canUseIndex reports whether the index can answer q exactly. Zero-norm
// vectors are never indexed, so a zero query or a threshold <= 0 goes
// through the linear scan.
func (s *Searcher) canUseIndex(q Query) bool {
	if s.index == nil || !s.index.Ready() {
		return false
	}
	return q.Threshold > 0 && Norm(q.Vector) > 0
}

func (s *Searcher) searchIndex(ctx context.Context, q Query) ([]Match, error) {
	k := 2 * q.Limit
	types := q.ContentTypes
	if len(types) == 0 {
		types = []string{""}
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, ct := range types {
		hits, err := s.index.Query(ctx, q.Vector, ct, k)
		if err != nil {
			return nil, fmt.Errorf("index query %q: %w", ct, err)
		}
		for _, h := range hits {
			if !seen[h.FingerprintID] {
				seen[h.FingerprintID] = true
				ids = append(ids, h.FingerprintID)
			}
		}
	}

	// Candidates are re-read from the store; stale index entries drop out here.
	fps, err := s.fingerprints.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	return rank(fps, q), nil
}

// SearchLinear computes the similarity of every stored fingerprint of the
// requested types. It is always correct and is the reference the index
// path must agree with.
func (s *Searcher) SearchLinear(ctx context.Context, q Query) ([]Match, error) {
	if q.Limit <= 0 {
		q.Limit = s.defaultLimit
	}
	fps, err := s.fingerprints.Scan(ctx, q.ContentTypes...)
	if err != nil {
		return nil, fmt.Errorf("scan fingerprints: %w", err)
	}
	return rank(fps, q), nil
}

// rank scores fps against q, drops those below the threshold or outside the
// requested types, and returns the top q.Limit by similarity. fps must be
// in ID order; equal similarities keep that order.
func rank(fps []models.Fingerprint, q Query) []Match {
	allowed := make(map[string]bool, len(q.ContentTypes))
	for _, ct := range q.ContentTypes {
		allowed[ct] = true
	}

	var matches []Match
	for _, fp := range fps {
		if len(allowed) > 0 && !allowed[fp.ContentType] {
			continue
		}
		sim := CosineSimilarity(q.Vector, BytesToFloat32(fp.Vector))
		if sim < q.Threshold {
			continue
		}
		matches = append(matches, Match{Fingerprint: fp, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches
}
