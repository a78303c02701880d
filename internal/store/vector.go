package store

import "math"

// cosineDistance returns 1 - cosine similarity, so that closer vectors
// yield smaller values, matching pgvector's <=> operator. Mismatched or
// zero-magnitude vectors are pushed to the far end of the ordering.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.MaxFloat64
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
