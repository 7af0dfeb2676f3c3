package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/cluster"
	"github.com/helixml/codeframe/domain/embedding"
)

// Clustering is the clustering stage. It runs the clusterer and validates
// its output before any labeling money is spent on it.
type Clustering struct {
	clusterer cluster.Clusterer
	logger    *slog.Logger
}

// NewClustering creates the clustering stage.
func NewClustering(clusterer cluster.Clusterer, logger *slog.Logger) *Clustering {
	return &Clustering{clusterer: clusterer, logger: logger}
}

// Cluster groups the points. Every answer ends up in at most one top-level
// cluster or in the noise bucket; clusters below the minimum size are
// dropped, and no surviving cluster is an ErrInsufficientData failure.
func (c *Clustering) Cluster(ctx context.Context, points []cluster.Point, cfg cluster.Config) (cluster.Result, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cluster.Result{}, err
	}
	if len(points) == 0 {
		return cluster.Result{}, fmt.Errorf("%w: no answers to cluster", domain.ErrInsufficientData)
	}

	vectors := make(map[int64][]float64, len(points))
	for _, p := range points {
		if _, dup := vectors[p.AnswerID]; dup {
			return cluster.Result{}, fmt.Errorf("%w: answer %d passed twice", domain.ErrValidation, p.AnswerID)
		}
		vectors[p.AnswerID] = p.Vector
	}

	start := time.Now()
	groups, err := c.clusterer.Cluster(ctx, points, cfg)
	if err != nil {
		return cluster.Result{}, fmt.Errorf("cluster answers: %w", err)
	}
	if err := checkGroups(groups, vectors); err != nil {
		return cluster.Result{}, err
	}

	var clusters []cluster.Cluster
	kept := make(map[int]bool)
	member := make(map[int64]bool, len(points))
	rejected := 0
	for _, g := range groups {
		if g.ParentID != nil {
			continue
		}
		if len(g.MemberIDs) < cfg.MinClusterSize {
			rejected++
			continue
		}
		kept[g.ID] = true
		for _, id := range g.MemberIDs {
			member[id] = true
		}
		clusters = append(clusters, c.build(g, vectors, cfg.MaxExamples))
	}
	for _, g := range groups {
		if g.ParentID == nil || !kept[*g.ParentID] || len(g.MemberIDs) < cfg.MinClusterSize {
			continue
		}
		clusters = append(clusters, c.build(g, vectors, cfg.MaxExamples))
	}

	if len(kept) == 0 {
		return cluster.Result{}, fmt.Errorf("%w: no cluster reached %d members among %d answers",
			domain.ErrInsufficientData, cfg.MinClusterSize, len(points))
	}

	var noise []int64
	for _, p := range points {
		if !member[p.AnswerID] {
			noise = append(noise, p.AnswerID)
		}
	}

	c.logger.Info("clustered answers",
		slog.Int("answers", len(points)),
		slog.Int("clusters", len(kept)),
		slog.Int("sub_clusters", len(clusters)-len(kept)),
		slog.Int("rejected", rejected),
		slog.Int("noise", len(noise)),
		slog.Duration("duration", time.Since(start)),
	)
	return cluster.Result{Clusters: clusters, Noise: noise}, nil
}

// build picks the members closest to the centroid as representatives.
func (c *Clustering) build(g cluster.Group, vectors map[int64][]float64, maxExamples int) cluster.Cluster {
	members := make(map[int64][]float64, len(g.MemberIDs))
	list := make([][]float64, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		members[id] = vectors[id]
		list = append(list, vectors[id])
	}
	nearest := embedding.Nearest(embedding.Centroid(list), members, maxExamples)
	reps := make([]int64, len(nearest))
	for i, m := range nearest {
		reps[i] = m.ID
	}

	ids := append([]int64(nil), g.MemberIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return cluster.NewCluster(g.ID, g.ParentID, ids, reps)
}

// checkGroups rejects clusterer output that breaks the membership contract:
// unknown answers, an answer in two top-level groups, or a sub-cluster that
// is not inside its parent.
func checkGroups(groups []cluster.Group, vectors map[int64][]float64) error {
	ids := make(map[int]cluster.Group, len(groups))
	for _, g := range groups {
		if _, dup := ids[g.ID]; dup {
			return fmt.Errorf("clusterer returned cluster id %d twice", g.ID)
		}
		ids[g.ID] = g
	}

	owner := make(map[int64]int)
	childOwner := make(map[int64]int)
	for _, g := range groups {
		if g.ParentID != nil {
			parent, ok := ids[*g.ParentID]
			if !ok || parent.ParentID != nil {
				return fmt.Errorf("clusterer returned sub-cluster %d with invalid parent", g.ID)
			}
		}
		for _, id := range g.MemberIDs {
			if _, ok := vectors[id]; !ok {
				return fmt.Errorf("clusterer returned unknown answer %d in cluster %d", id, g.ID)
			}
			seen := owner
			if g.ParentID != nil {
				seen = childOwner
			}
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("clusterer placed answer %d in clusters %d and %d", id, prev, g.ID)
			}
			seen[id] = g.ID
		}
	}

	for _, g := range groups {
		if g.ParentID == nil {
			continue
		}
		for _, id := range g.MemberIDs {
			if p, ok := owner[id]; !ok || p != *g.ParentID {
				return fmt.Errorf("clusterer placed answer %d of sub-cluster %d outside its parent", id, g.ID)
			}
		}
	}
	return nil
}
