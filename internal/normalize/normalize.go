// Package normalize implements the score normalization strategies used
// before fusion: min-max, z-score, and identity, each with the single- and
// constant-list fallbacks the fusion core depends on.
package normalize

import "math"

// Method names a normalization strategy.
type Method string

const (
	MinMax   Method = "minmax"
	ZScore   Method = "zscore"
	Identity Method = "none"
)

// fallbackValue is returned for every element of a single-element or
// constant-valued list, per §4.3's normalization guards.
const fallbackValue = 0.5

// Apply normalizes scores according to method. The input is never mutated.
func Apply(scores []float64, method Method) []float64 {
	out := make([]float64, len(scores))
	switch method {
	case MinMax:
		applyMinMax(scores, out)
	case ZScore:
		applyZScore(scores, out)
	default:
		copy(out, scores)
	}
	return out
}

func applyMinMax(scores, out []float64) {
	if len(scores) == 0 {
		return
	}
	if len(scores) == 1 {
		out[0] = fallbackValue
		return
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	if max == min {
		for i := range out {
			out[i] = fallbackValue
		}
		return
	}
	span := max - min
	for i, s := range scores {
		out[i] = (s - min) / span
	}
}

func applyZScore(scores, out []float64) {
	n := len(scores)
	if n == 0 {
		return
	}
	if n == 1 {
		out[0] = fallbackValue
		return
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)

	if stddev == 0 {
		for i := range out {
			out[i] = fallbackValue
		}
		return
	}
	for i, s := range scores {
		out[i] = (s - mean) / stddev
	}
}

// Idempotent reports whether applying method twice to scores yields the
// same result as applying it once, the property exercised by the
// normalization-idempotence test for any non-constant input.
func Idempotent(scores []float64, method Method) bool {
	once := Apply(scores, method)
	twice := Apply(once, method)
	if len(once) != len(twice) {
		return false
	}
	for i := range once {
		if math.Abs(once[i]-twice[i]) > 1e-9 {
			return false
		}
	}
	return true
}
