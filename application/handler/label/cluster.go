// Package label provides the handler that names clusters and writes them
// into the hierarchy.
package label

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helixml/codeframe/application/handler"
	"github.com/helixml/codeframe/domain"
	"github.com/helixml/codeframe/domain/generation"
	"github.com/helixml/codeframe/domain/hierarchy"
	"github.com/helixml/codeframe/domain/job"
	"github.com/helixml/codeframe/domain/label"
)

// Cluster handles label_cluster jobs. It is safe to run more than once for
// the same cluster: nodes that already exist are reused without another
// labeler call, and clusters an editor deleted stay deleted.
type Cluster struct {
	generations generation.Store
	hierarchy   hierarchy.Store
	labeler     label.Labeler
	logger      *slog.Logger
}

// NewCluster creates a new Cluster handler.
func NewCluster(
	generations generation.Store,
	hierarchyStore hierarchy.Store,
	labeler label.Labeler,
	logger *slog.Logger,
) *Cluster {
	return &Cluster{
		generations: generations,
		hierarchy:   hierarchyStore,
		labeler:     labeler,
		logger:      logger,
	}
}

// Register binds the handler to its job kind.
func (h *Cluster) Register(r *handler.Registry) {
	handler.Register(r, h.Execute)
}

// Execute processes one label_cluster job.
func (h *Cluster) Execute(ctx context.Context, j job.Job, p job.LabelClusterPayload) error {
	log := h.logger.With(
		slog.Int64("job_id", j.ID()),
		slog.Int64("generation_id", p.GenerationID),
		slog.Int("cluster_id", p.ClusterID),
	)

	g, err := h.generations.Get(ctx, p.GenerationID)
	if errors.Is(err, domain.ErrNotFound) {
		return job.Permanent(err)
	}
	if err != nil {
		return err
	}
	if g.Status().IsFailure() {
		log.Info("skipping label job of stopped generation", slog.String("status", string(g.Status())))
		return nil
	}

	parent, ok, err := h.labelCluster(ctx, log, p.GenerationID, p.ClusterID, nil, nil, label.Request{
		Examples:       p.Examples,
		TargetLanguage: p.TargetLanguage,
	})
	if err != nil {
		return err
	}

	var parentID *int64
	parentName := ""
	if ok {
		id := parent.ID()
		parentID = &id
		parentName = parent.Name()
	}
	clusterID := p.ClusterID
	for _, child := range p.Children {
		_, _, err := h.labelCluster(ctx, log, p.GenerationID, child.ClusterID, &clusterID, parentID, label.Request{
			Examples:       child.Examples,
			TargetLanguage: p.TargetLanguage,
			ParentName:     parentName,
		})
		if err != nil {
			return fmt.Errorf("sub-cluster %d: %w", child.ClusterID, err)
		}
	}
	return nil
}

// labelCluster returns the node for the cluster, calling the labeler only
// when none exists. It reports false when the cluster is tombstoned.
func (h *Cluster) labelCluster(
	ctx context.Context,
	log *slog.Logger,
	generationID int64,
	clusterID int,
	parentClusterID *int,
	parentID *int64,
	req label.Request,
) (hierarchy.Node, bool, error) {
	existing, found, err := h.hierarchy.FindByCluster(ctx, generationID, clusterID)
	if err != nil {
		return hierarchy.Node{}, false, err
	}
	if found {
		log.Debug("cluster already labeled", slog.Int("node_cluster_id", clusterID), slog.Int64("node_id", existing.ID()))
		return existing, true, nil
	}

	tombstoned, err := h.hierarchy.IsTombstoned(ctx, generationID, clusterID)
	if err != nil {
		return hierarchy.Node{}, false, err
	}
	if tombstoned {
		log.Info("skipping cluster deleted by an editor", slog.Int("node_cluster_id", clusterID))
		return hierarchy.Node{}, false, nil
	}

	l, err := h.labeler.Label(ctx, req)
	if err != nil {
		return hierarchy.Node{}, false, fmt.Errorf("label cluster %d: %w", clusterID, err)
	}

	node := hierarchy.NewAutoNode(generationID, clusterID, parentClusterID, l.Name, l.Description, l.Confidence, l.Frequency, req.Examples).
		WithParent(parentID, 0)
	saved, err := h.hierarchy.InsertAuto(ctx, node)
	if errors.Is(err, hierarchy.ErrTombstoned) {
		log.Info("cluster deleted by an editor while labeling", slog.Int("node_cluster_id", clusterID))
		return hierarchy.Node{}, false, nil
	}
	if err != nil {
		return hierarchy.Node{}, false, err
	}

	log.Info("cluster labeled",
		slog.Int("node_cluster_id", clusterID),
		slog.Int64("node_id", saved.ID()),
		slog.String("name", saved.Name()),
	)
	return saved, true, nil
}
