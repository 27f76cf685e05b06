// Package vector provides the vector normalization used by the HNSW
// adapter (adapters/vectorstore/hnsw) before indexing and querying, so that
// the index's configured cosine-distance metric operates on unit vectors.
package vector

import "math"

// Normalize returns a normalized copy of the vector.
// The input vector is not modified (immutable operation).
//
// Example:
//
//	original := []float32{3.0, 4.0}
//	normalized := Normalize(original)  // Returns [0.6, 0.8]
//	// original is unchanged
func Normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v * v)
	}

	if sumSquares == 0 {
		result := make([]float32, len(vec))
		return result
	}

	norm := math.Sqrt(sumSquares)
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized
}

// NormalizeInPlace normalizes a vector in-place (modifies the input).
// After normalization, the vector has unit length (magnitude = 1).
//
// WARNING: Modifies the input slice. Use Normalize() to preserve original.
//
// Example:
//
//	v := []float32{3.0, 4.0}
//	NormalizeInPlace(v)  // v is now [0.6, 0.8]
func NormalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= norm
	}
}
