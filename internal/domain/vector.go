package domain

import "math"

// Normalize returns v scaled to unit L2 norm. ok is false when the norm is zero or not finite.
func Normalize(v []float32) (out []float32, ok bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	out = make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// ZeroVector returns the dense fallback vector of the given dimension.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// IsZero reports whether every component of v is zero. An empty vector is zero.
// Callers treat a zero dense vector as "skip vector retrieval".
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// L2Norm returns the Euclidean norm of v.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
