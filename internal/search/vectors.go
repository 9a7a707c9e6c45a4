package search

import (
	"encoding/binary"
	"math"
)

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched lengths, empty vectors and zero-norm vectors all
// yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}
	sim := dot / denom
	if math.IsNaN(sim) {
		return 0
	}
	// rounding can push identical vectors slightly past 1
	return math.Max(-1, math.Min(1, sim))
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// Float32ToBytes encodes v as contiguous little-endian float32 values,
// 4 bytes per element.
func Float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToFloat32 decodes a Float32ToBytes blob. It returns nil when the
// length is not a multiple of 4.
func BytesToFloat32(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
