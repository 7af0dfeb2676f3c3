package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"scaled", []float64{1, 1}, []float64{3, 3}, 1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1}, []float64{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCentroid(t *testing.T) {
	assert.Nil(t, Centroid(nil))
	assert.Equal(t, []float64{2, 3}, Centroid([][]float64{{1, 2}, {3, 4}}))
}

func TestNearest_OrdersBySimilarityThenID(t *testing.T) {
	vectors := map[int64][]float64{
		5: {1, 0},
		2: {1, 0},
		9: {0, 1},
		7: {1, 1},
	}
	got := Nearest([]float64{1, 0}, vectors, 3)
	ids := make([]int64, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	assert.Equal(t, []int64{2, 5, 7}, ids)
	assert.Empty(t, Nearest([]float64{1, 0}, vectors, 0))
}
