package embedding

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical).
// Returns 0 if either vector has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float64) float64 {
	return 1 - CosineSimilarity(a, b)
}

// Centroid returns the component-wise mean of vectors, nil for none.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range out {
			if i < len(v) {
				out[i] += v[i]
			}
		}
	}
	n := float64(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}

// Match is an id scored against a query vector.
type Match struct {
	ID         int64
	Similarity float64
}

// Nearest returns up to k ids from vectors most similar to query, highest
// similarity first with ties broken by lower id.
func Nearest(query []float64, vectors map[int64][]float64, k int) []Match {
	if len(vectors) == 0 || k <= 0 {
		return []Match{}
	}

	matches := make([]Match, 0, len(vectors))
	for id, v := range vectors {
		matches = append(matches, Match{ID: id, Similarity: CosineSimilarity(query, v)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}
