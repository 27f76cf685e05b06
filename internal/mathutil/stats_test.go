package mathutil

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStats_ComputesMeanMaxMinStdDev(t *testing.T) {
	s := Stats([]float64{1, 2, 3, 4})
	if !approxEqual(s.Mean, 2.5) {
		t.Fatalf("mean = %v, want 2.5", s.Mean)
	}
	if s.Max != 4 || s.Min != 1 {
		t.Fatalf("max/min = %v/%v, want 4/1", s.Max, s.Min)
	}
	if s.Count != 4 {
		t.Fatalf("count = %d, want 4", s.Count)
	}
}

func TestStats_EmptyReturnsZeroValue(t *testing.T) {
	s := Stats(nil)
	if s.Count != 0 || s.Percentiles == nil {
		t.Fatalf("unexpected zero-value shape: %+v", s)
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	if p := Percentile(sorted, 50); p != 30 {
		t.Fatalf("p50 = %v, want 30", p)
	}
	if p := Percentile(sorted, 100); p != 50 {
		t.Fatalf("p100 = %v, want 50", p)
	}
}

func TestConsistency_DecreasesAsStdDevGrows(t *testing.T) {
	tight := Consistency(0.0)
	loose := Consistency(2.0)
	if tight != 1.0 {
		t.Fatalf("consistency(0) = %v, want 1.0", tight)
	}
	if loose >= tight {
		t.Fatalf("expected consistency to fall as stddev grows: %v >= %v", loose, tight)
	}
}

func TestClamp_BoundsValue(t *testing.T) {
	if v := Clamp(-1, 0, 1); v != 0 {
		t.Fatalf("got %v, want 0", v)
	}
	if v := Clamp(5, 0, 1); v != 1 {
		t.Fatalf("got %v, want 1", v)
	}
	if v := Clamp(0.5, 0, 1); v != 0.5 {
		t.Fatalf("got %v, want 0.5", v)
	}
}

func TestCosine_IdenticalVectorsAreOne(t *testing.T) {
	v := []float64{1, 2, 3}
	if c := Cosine(v, v); !approxEqual(c, 1.0) {
		t.Fatalf("cosine(v,v) = %v, want 1.0", c)
	}
}

func TestCosine_OrthogonalVectorsAreZero(t *testing.T) {
	if c := Cosine([]float64{1, 0}, []float64{0, 1}); c != 0 {
		t.Fatalf("cosine = %v, want 0", c)
	}
}

func TestCosine_MismatchedLengthReturnsZero(t *testing.T) {
	if c := Cosine([]float64{1, 2}, []float64{1}); c != 0 {
		t.Fatalf("cosine = %v, want 0", c)
	}
}

func TestJaccard_IdenticalSetsAreOne(t *testing.T) {
	if j := Jaccard([]string{"a", "b"}, []string{"b", "a"}); j != 1.0 {
		t.Fatalf("jaccard = %v, want 1.0", j)
	}
}

func TestJaccard_DisjointSetsAreZero(t *testing.T) {
	if j := Jaccard([]string{"a"}, []string{"b"}); j != 0 {
		t.Fatalf("jaccard = %v, want 0", j)
	}
}

func TestJaccard_BothEmptyIsOne(t *testing.T) {
	if j := Jaccard(nil, nil); j != 1.0 {
		t.Fatalf("jaccard = %v, want 1.0", j)
	}
}
