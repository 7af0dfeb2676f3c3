// Package clustering implements a deterministic density clusterer over
// cosine distance with optional 2-means sub-clustering.
package clustering

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/embedding"
)

const maxKMeansIterations = 50

// Density groups points whose cosine distance is within epsilon, seeding
// clusters only from core points with at least min_samples neighbours.
// Points are visited in input order, so identical input gives identical output.
type Density struct {
	logger *slog.Logger
}

// NewDensity creates a Density clusterer.
func NewDensity(logger *slog.Logger) *Density {
	if logger == nil {
		logger = slog.Default()
	}
	return &Density{logger: logger}
}

// Cluster implements cluster.Clusterer.
func (d *Density) Cluster(ctx context.Context, points []cluster.Point, cfg cluster.Config) ([]cluster.Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	vectors, err := unitVectors(points)
	if err != nil {
		return nil, err
	}

	labels, n, err := dbscan(ctx, vectors, cfg.Epsilon, cfg.MinSamples)
	if err != nil {
		return nil, err
	}

	groups := make([]cluster.Group, n)
	for i := range groups {
		groups[i].ID = i
	}
	for i, label := range labels {
		if label >= 0 {
			groups[label].MemberIDs = append(groups[label].MemberIDs, points[i].AnswerID)
		}
	}

	if cfg.HierarchyPreference == cluster.HierarchyAdaptive {
		groups, err = d.subdivide(ctx, groups, points, vectors, labels, cfg)
		if err != nil {
			return nil, err
		}
	}

	d.logger.Debug("density clustering finished",
		slog.Int("points", len(points)),
		slog.Int("groups", len(groups)),
	)
	return groups, nil
}

// subdivide splits every top-level group of at least 2*min_cluster_size
// members into two children when both halves reach min_cluster_size.
func (d *Density) subdivide(
	ctx context.Context,
	groups []cluster.Group,
	points []cluster.Point,
	vectors [][]float64,
	labels []int,
	cfg cluster.Config,
) ([]cluster.Group, error) {
	nextID := len(groups)
	out := groups
	for _, g := range groups {
		if len(g.MemberIDs) < 2*cfg.MinClusterSize {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var idx []int
		for i, label := range labels {
			if label == g.ID {
				idx = append(idx, i)
			}
		}
		members := make([][]float64, len(idx))
		for i, p := range idx {
			members[i] = vectors[p]
		}

		split := twoMeans(members)
		halves := [2][]int64{}
		for i, side := range split {
			halves[side] = append(halves[side], points[idx[i]].AnswerID)
		}
		if len(halves[0]) < cfg.MinClusterSize || len(halves[1]) < cfg.MinClusterSize {
			continue
		}
		for _, h := range halves {
			parent := g.ID
			out = append(out, cluster.Group{ID: nextID, ParentID: &parent, MemberIDs: h})
			nextID++
		}
	}
	return out, nil
}

// dbscan returns a cluster label per vector (-1 for noise) and the cluster count.
func dbscan(ctx context.Context, vectors [][]float64, epsilon float64, minSamples int) ([]int, int, error) {
	const unvisited, noise = -2, -1
	labels := make([]int, len(vectors))
	for i := range labels {
		labels[i] = unvisited
	}

	neighbours := func(i int) []int {
		var out []int
		for j := range vectors {
			if 1-dot(vectors[i], vectors[j]) <= epsilon {
				out = append(out, j)
			}
		}
		return out
	}

	n := 0
	for i := range vectors {
		if labels[i] != unvisited {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		seeds := neighbours(i)
		if len(seeds) < minSamples {
			labels[i] = noise
			continue
		}

		id := n
		n++
		labels[i] = id
		queue := append([]int(nil), seeds...)
		for k := 0; k < len(queue); k++ {
			j := queue[k]
			if labels[j] == noise {
				labels[j] = id
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = id
			more := neighbours(j)
			if len(more) >= minSamples {
				queue = append(queue, more...)
			}
		}
	}
	return labels, n, nil
}

// twoMeans splits unit vectors into two sides. It seeds with the first
// vector and the vector farthest from it, and ties go to side 0.
func twoMeans(vectors [][]float64) []int {
	side := make([]int, len(vectors))
	if len(vectors) < 2 {
		return side
	}

	far, best := 0, math.Inf(1)
	for i, v := range vectors {
		if s := dot(vectors[0], v); s < best {
			far, best = i, s
		}
	}
	centroids := [2][]float64{vectors[0], vectors[far]}

	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i, v := range vectors {
			next := 0
			if dot(v, centroids[1]) > dot(v, centroids[0]) {
				next = 1
			}
			if side[i] != next {
				side[i] = next
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}
		for c := range centroids {
			var members [][]float64
			for i, s := range side {
				if s == c {
					members = append(members, vectors[i])
				}
			}
			if len(members) > 0 {
				centroids[c] = normalize(embedding.Centroid(members))
			}
		}
	}
	return side
}

func unitVectors(points []cluster.Point) ([][]float64, error) {
	dim := len(points[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty vector for answer %d", domain.ErrEmbeddingMismatch, points[0].AnswerID)
	}
	out := make([][]float64, len(points))
	for i, p := range points {
		if len(p.Vector) != dim {
			return nil, fmt.Errorf("%w: answer %d has dimension %d, expected %d",
				domain.ErrEmbeddingMismatch, p.AnswerID, len(p.Vector), dim)
		}
		out[i] = normalize(p.Vector)
	}
	return out, nil
}

func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float64, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
