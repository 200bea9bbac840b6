package utils

import "math"

// NormalizeL2 scales an embedding vector in place to unit length so inner product equals cosine
// similarity, and returns the norm it had before. The sum is taken in float64 to keep long
// vectors accurate. A zero vector is left unchanged.
func NormalizeL2(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return 0
	}
	norm := math.Sqrt(sum)
	inv := 1 / norm
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return norm
}
