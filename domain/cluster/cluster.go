// Package cluster defines clustering configuration, provider output and
// the validated clusters that labeling works from.
package cluster

import (
	"context"
	"fmt"

	"github.com/helixml/codeframe/domain"
)

// HierarchyPreference selects flat clustering or adaptive sub-clustering.
type HierarchyPreference string

// HierarchyPreference values.
const (
	HierarchyFlat     HierarchyPreference = "flat"
	HierarchyAdaptive HierarchyPreference = "adaptive"
)

// Default algorithm settings.
const (
	DefaultMinClusterSize = 5
	DefaultMinSamples     = 3
	DefaultEpsilon        = 0.35
	DefaultMaxExamples    = 8
	maxExamplesLimit      = 50
)

// Config is the algorithm configuration stored on a generation.
type Config struct {
	MinClusterSize      int                 `json:"min_cluster_size" yaml:"min_cluster_size"`
	MinSamples          int                 `json:"min_samples" yaml:"min_samples"`
	Epsilon             float64             `json:"epsilon" yaml:"epsilon"`
	HierarchyPreference HierarchyPreference `json:"hierarchy_preference" yaml:"hierarchy_preference"`
	MaxExamples         int                 `json:"max_examples" yaml:"max_examples"`
}

// DefaultConfig returns the default algorithm configuration.
func DefaultConfig() Config {
	return Config{
		MinClusterSize:      DefaultMinClusterSize,
		MinSamples:          DefaultMinSamples,
		Epsilon:             DefaultEpsilon,
		HierarchyPreference: HierarchyFlat,
		MaxExamples:         DefaultMaxExamples,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MinClusterSize == 0 {
		c.MinClusterSize = d.MinClusterSize
	}
	if c.MinSamples == 0 {
		c.MinSamples = d.MinSamples
	}
	if c.Epsilon == 0 {
		c.Epsilon = d.Epsilon
	}
	if c.HierarchyPreference == "" {
		c.HierarchyPreference = d.HierarchyPreference
	}
	if c.MaxExamples == 0 {
		c.MaxExamples = d.MaxExamples
	}
	return c
}

// Validate checks the configuration. Errors wrap domain.ErrValidation.
func (c Config) Validate() error {
	switch {
	case c.MinClusterSize < 2:
		return fmt.Errorf("%w: min_cluster_size must be at least 2, got %d", domain.ErrValidation, c.MinClusterSize)
	case c.MinSamples < 1:
		return fmt.Errorf("%w: min_samples must be at least 1, got %d", domain.ErrValidation, c.MinSamples)
	case c.Epsilon <= 0 || c.Epsilon > 2:
		return fmt.Errorf("%w: epsilon must be in (0, 2], got %g", domain.ErrValidation, c.Epsilon)
	case c.HierarchyPreference != HierarchyFlat && c.HierarchyPreference != HierarchyAdaptive:
		return fmt.Errorf("%w: unknown hierarchy_preference %q", domain.ErrValidation, c.HierarchyPreference)
	case c.MaxExamples < 1 || c.MaxExamples > maxExamplesLimit:
		return fmt.Errorf("%w: max_examples must be in [1, %d], got %d", domain.ErrValidation, maxExamplesLimit, c.MaxExamples)
	}
	return nil
}

// Point is one answer's vector handed to the clusterer.
type Point struct {
	AnswerID int64
	Vector   []float64
}

// Group is a clusterer's raw output: an id, its members and, for
// sub-clusters, the id of the enclosing group.
type Group struct {
	ID        int
	ParentID  *int
	MemberIDs []int64
}

// Clusterer groups points. Implementations must be deterministic for
// identical input and configuration.
type Clusterer interface {
	Cluster(ctx context.Context, points []Point, cfg Config) ([]Group, error)
}

// Cluster is a validated group ready for labeling.
type Cluster struct {
	id                int
	parentID          *int
	memberIDs         []int64
	representativeIDs []int64
}

// NewCluster creates a Cluster.
func NewCluster(id int, parentID *int, memberIDs, representativeIDs []int64) Cluster {
	return Cluster{
		id:                id,
		parentID:          copyIntPtr(parentID),
		memberIDs:         append([]int64(nil), memberIDs...),
		representativeIDs: append([]int64(nil), representativeIDs...),
	}
}

// ID returns the cluster id, unique within a generation.
func (c Cluster) ID() int { return c.id }

// ParentID returns the enclosing cluster's id for sub-clusters, nil for top level.
func (c Cluster) ParentID() *int { return copyIntPtr(c.parentID) }

// IsTopLevel reports whether the cluster has no parent.
func (c Cluster) IsTopLevel() bool { return c.parentID == nil }

// MemberIDs returns the answer ids in the cluster.
func (c Cluster) MemberIDs() []int64 { return append([]int64(nil), c.memberIDs...) }

// Size returns the member count.
func (c Cluster) Size() int { return len(c.memberIDs) }

// RepresentativeIDs returns the sampled answer ids used for labeling prompts.
func (c Cluster) RepresentativeIDs() []int64 { return append([]int64(nil), c.representativeIDs...) }

// Result is the validated output of the clustering stage.
type Result struct {
	Clusters []Cluster
	Noise    []int64
}

// TopLevel returns the clusters without a parent.
func (r Result) TopLevel() []Cluster {
	var out []Cluster
	for _, c := range r.Clusters {
		if c.IsTopLevel() {
			out = append(out, c)
		}
	}
	return out
}

// Children returns the sub-clusters of the cluster with the given id.
func (r Result) Children(id int) []Cluster {
	var out []Cluster
	for _, c := range r.Clusters {
		if c.parentID != nil && *c.parentID == id {
			out = append(out, c)
		}
	}
	return out
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
