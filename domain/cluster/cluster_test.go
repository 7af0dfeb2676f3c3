package cluster

import (
	"testing"

	"github.com/helixml/codeframe/domain"
	"github.com/stretchr/testify/assert"
)

func TestConfig_WithDefaultsIsValid(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min cluster size", func(c *Config) { c.MinClusterSize = 1 }},
		{"min samples", func(c *Config) { c.MinSamples = -1 }},
		{"epsilon", func(c *Config) { c.Epsilon = 3 }},
		{"preference", func(c *Config) { c.HierarchyPreference = "deep" }},
		{"max examples", func(c *Config) { c.MaxExamples = 500 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrValidation)
		})
	}
}

func TestResult_TopLevelAndChildren(t *testing.T) {
	parent := 1
	r := Result{Clusters: []Cluster{
		NewCluster(1, nil, []int64{1, 2, 3, 4}, []int64{1}),
		NewCluster(2, &parent, []int64{1, 2}, []int64{1}),
		NewCluster(3, &parent, []int64{3, 4}, []int64{3}),
		NewCluster(4, nil, []int64{5, 6}, []int64{5}),
	}}

	top := r.TopLevel()
	assert.Len(t, top, 2)
	assert.Equal(t, 1, top[0].ID())
	assert.Equal(t, 4, top[1].ID())

	children := r.Children(1)
	assert.Len(t, children, 2)
	assert.Equal(t, 1, *children[0].ParentID())
	assert.Empty(t, r.Children(4))
}
