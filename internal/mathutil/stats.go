// Package mathutil provides the score-distribution statistics and
// similarity helpers shared by the keyword-points rescorer and the
// source-aware confidence computation. The similarity helpers are ported
// from the teacher's apoc/scoring/scoring.go (apoc itself is not carried
// forward as a package, see DESIGN.md), the statistics helpers are new,
// grounded on the shape of ScoreStats in §3.
package mathutil

import (
	"math"
	"sort"

	"github.com/orneryd/retrievalcore/internal/types"
)

// Stats computes mean/max/min/stdDev/count/percentiles over scores, the
// shape required by AnswerabilityScore.ScoreStats.
func Stats(scores []float64) types.ScoreStats {
	n := len(scores)
	if n == 0 {
		return types.ScoreStats{Percentiles: map[int]float64{}}
	}

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	var sum float64
	max, min := sorted[0], sorted[0]
	for _, s := range scores {
		sum += s
		if s > max {
			max = s
		}
		if s < min {
			min = s
		}
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)

	return types.ScoreStats{
		Mean:   mean,
		Max:    max,
		Min:    min,
		StdDev: stddev,
		Count:  n,
		Percentiles: map[int]float64{
			50: Percentile(sorted, 50),
			90: Percentile(sorted, 90),
			95: Percentile(sorted, 95),
			99: Percentile(sorted, 99),
		},
	}
}

// Percentile returns the p-th percentile of an already-sorted slice using
// nearest-rank interpolation.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Consistency maps a standard deviation to a [0,1] consistency score: lower
// stddev (tighter agreement among scores) yields a value closer to 1. Used
// by every per-stage confidence formula in §4.7.
func Consistency(stddev float64) float64 {
	return 1.0 / (1.0 + stddev)
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// Max returns the largest element, 0 for an empty slice.
func Max(scores []float64) float64 {
	m := 0.0
	for i, s := range scores {
		if i == 0 || s > m {
			m = s
		}
	}
	return m
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Cosine calculates cosine similarity between two float64 vectors, ported
// from apoc.scoring.cosine.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Jaccard calculates the Jaccard similarity between two string sets,
// ported from apoc.scoring.jaccard. Used as the content-similarity term of
// MMR diversity selection (internal/mmr).
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	setA := make(map[string]bool, len(a))
	setB := make(map[string]bool, len(b))
	for _, v := range a {
		setA[v] = true
	}
	for _, v := range b {
		setB[v] = true
	}
	intersection := 0
	for v := range setA {
		if setB[v] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
