package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an Embedder with an in-process LRU keyed by content
// hash.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create fingerprint cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the vector for text, using the cache when available. The
// returned slice is a copy and may be modified by the caller.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) []float32 {
	key := ContentHash(text)
	if vec, ok := e.cache.Get(key); ok {
		return append([]float32(nil), vec...)
	}

	vec := e.inner.Embed(ctx, text)
	e.cache.Add(key, append([]float32(nil), vec...))
	return vec
}

func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Len reports how many vectors are cached.
func (e *CachedEmbedder) Len() int {
	return e.cache.Len()
}

// ContentHash computes a SHA-256 hash of text content.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
