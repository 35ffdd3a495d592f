// Package vectors provides small utilities for embedding vectors.
package vectors

import "math"

// NormalizeL2 scales vector in place to unit length. Cosine distance over
// stored embeddings assumes unit vectors, so every vector is normalized once
// before it is persisted or compared. A zero vector is left unchanged.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}
