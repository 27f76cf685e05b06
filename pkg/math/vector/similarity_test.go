package vector

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Run("normalizes vector to unit length", func(t *testing.T) {
		vec := []float32{3.0, 4.0}
		result := Normalize(vec)

		// Expected: [0.6, 0.8]
		if math.Abs(float64(result[0]-0.6)) > 0.001 {
			t.Errorf("expected [0] = 0.6, got %f", result[0])
		}
		if math.Abs(float64(result[1]-0.8)) > 0.001 {
			t.Errorf("expected [1] = 0.8, got %f", result[1])
		}

		// Original should be unchanged
		if vec[0] != 3.0 || vec[1] != 4.0 {
			t.Error("original vector was modified")
		}
	})

	t.Run("zero vector returns zero vector", func(t *testing.T) {
		vec := []float32{0.0, 0.0, 0.0}
		result := Normalize(vec)

		for i, v := range result {
			if v != 0.0 {
				t.Errorf("expected [%d] = 0, got %f", i, v)
			}
		}
	})
}

func TestNormalizeInPlace(t *testing.T) {
	t.Run("normalizes vector in place", func(t *testing.T) {
		vec := []float32{3.0, 4.0}
		NormalizeInPlace(vec)

		// Expected: [0.6, 0.8]
		if math.Abs(float64(vec[0]-0.6)) > 0.001 {
			t.Errorf("expected [0] = 0.6, got %f", vec[0])
		}
		if math.Abs(float64(vec[1]-0.8)) > 0.001 {
			t.Errorf("expected [1] = 0.8, got %f", vec[1])
		}
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		vec := []float32{0.0, 0.0}
		NormalizeInPlace(vec)

		if vec[0] != 0.0 || vec[1] != 0.0 {
			t.Error("zero vector should remain unchanged")
		}
	})
}

func BenchmarkNormalize(b *testing.B) {
	vec := make([]float32, 1024)
	for i := range vec {
		vec[i] = float32(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Normalize(vec)
	}
}

func BenchmarkNormalizeInPlace(b *testing.B) {
	vec := make([]float32, 1024)
	for i := range vec {
		vec[i] = float32(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Reset for each iteration since we modify in place
		for j := range vec {
			vec[j] = float32(j)
		}
		NormalizeInPlace(vec)
	}
}
