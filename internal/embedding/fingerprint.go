// Package embedding turns text into fixed-length vectors.
//
// The default HashEmbedder is a deterministic trigonometric fingerprint, not
// a learned model: two texts with a high cosine similarity share character
// structure, which only loosely tracks shared meaning. Treat every
// similarity derived from it as best-effort ranking, never as a guarantee.
package embedding

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"
)

// DefaultDimensions is the fingerprint length used when none is configured.
const DefaultDimensions = 128

// Embedder produces a vector for text. Implementations never fail: on any
// internal error they return the zero vector of length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	Dimensions() int
}

// Fingerprint deterministically maps text to a vector of length dims with
// every element in (-1, 1). The empty string maps to the zero vector.
func Fingerprint(text string, dims int) []float32 {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	normalized := []rune(strings.ToLower(strings.TrimSpace(text)))

	vec := make([]float32, dims)
	for i := range vec {
		fi := float64(i + 1)
		var acc float64
		for j, r := range normalized {
			code := float64(r)
			fj := float64(j + 1)
			acc += math.Sin(code*fi*fj*0.01) + math.Cos(code*fj*fi*0.001)
		}
		v := math.Tanh(acc * 0.1)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		vec[i] = squash(v)
	}
	return vec
}

// squash narrows v to float32 while keeping it strictly inside (-1, 1);
// tanh of a large sum rounds to exactly +/-1 in float32.
func squash(v float64) float32 {
	f := float32(v)
	switch {
	case f >= 1:
		return math.Nextafter32(1, 0)
	case f <= -1:
		return math.Nextafter32(-1, 0)
	}
	return f
}

// HashEmbedder is the dependency-free Embedder backed by Fingerprint.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) []float32 {
	return Fingerprint(text, e.dims)
}

func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// SampleContent bounds the text fingerprinted for large files to the first
// and last limit/2 bytes, cut on rune boundaries.
func SampleContent(content string, limit int) string {
	if limit <= 0 || len(content) <= limit {
		return content
	}
	half := limit / 2
	head := content[:half]
	for len(head) > 0 {
		if r, size := utf8.DecodeLastRuneInString(head); r != utf8.RuneError || size > 1 {
			break
		}
		head = head[:len(head)-1]
	}
	tail := content[len(content)-half:]
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return head + "\n...\n" + tail
}
