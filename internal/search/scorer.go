package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/iammorganparry/clive/apps/recall/internal/models"
)

// Scorer attaches query relevance to domain records using their stored
// fingerprints.
type Scorer struct {
	fingerprints FingerprintSource
}

func NewScorer(fingerprints FingerprintSource) *Scorer {
	return &Scorer{fingerprints: fingerprints}
}

// Vectors returns the newest fingerprint vector per content ID among the
// given content types.
func (s *Scorer) Vectors(ctx context.Context, primaryType string, secondaryTypes ...string) (map[string][]float32, error) {
	types := append([]string{primaryType}, secondaryTypes...)
	fps, err := s.fingerprints.Scan(ctx, types...)
	if err != nil {
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}

	newest := make(map[string]models.Fingerprint, len(fps))
	for _, fp := range fps {
		cur, ok := newest[fp.ContentID]
		if !ok || !fp.CreatedAt.Before(cur.CreatedAt) {
			newest[fp.ContentID] = fp
		}
	}

	out := make(map[string][]float32, len(newest))
	for id, fp := range newest {
		out[id] = BytesToFloat32(fp.Vector)
	}
	return out, nil
}

// Score computes the relevance of each item to query, keeps those at or
// above threshold and sorts them by relevance descending. Items without a
// vector score 0. Input order breaks ties.
func Score[T any](items []T, key func(T) string, vectors map[string][]float32, query []float32, threshold float64) []models.Scored[T] {
	out := make([]models.Scored[T], 0, len(items))
	for _, it := range items {
		var rel float64
		if vec, ok := vectors[key(it)]; ok {
			rel = CosineSimilarity(query, vec)
		}
		if rel < threshold {
			continue
		}
		out = append(out, models.Scored[T]{Item: it, Relevance: &rel})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Relevance > *out[j].Relevance
	})
	return out
}

// ScoreItems loads the fingerprints of the given types and scores items
// against query.
func ScoreItems[T any](ctx context.Context, s *Scorer, items []T, key func(T) string, query []float32, threshold float64, primaryType string, secondaryTypes ...string) ([]models.Scored[T], error) {
	vectors, err := s.Vectors(ctx, primaryType, secondaryTypes...)
	if err != nil {
		return nil, err
	}
	return Score(items, key, vectors, query, threshold), nil
}
