// Package cache provides the best-effort tiers that sit in front of the
// durable embedding cache.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/helixml/codeframe/domain/embedding"
)

// DefaultLRUSize is the number of vectors kept in process when no size is configured.
const DefaultLRUSize = 10000

// LRU is an in-process embedding tier bounded by entry count.
type LRU struct {
	entries *lru.Cache[embedding.Key, []float64]
}

// NewLRU creates an LRU tier holding up to size vectors.
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	entries, err := lru.New[embedding.Key, []float64](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRU{entries: entries}, nil
}

// Name implements embedding.Tier.
func (c *LRU) Name() string { return "lru" }

// GetMany implements embedding.Tier.
func (c *LRU) GetMany(_ context.Context, keys []embedding.Key) (map[embedding.Key][]float64, error) {
	out := make(map[embedding.Key][]float64, len(keys))
	for _, k := range keys {
		if v, ok := c.entries.Get(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMany implements embedding.Tier.
func (c *LRU) SetMany(_ context.Context, entries []embedding.Entry) error {
	for _, e := range entries {
		c.entries.Add(e.Key(), e.Vector())
	}
	return nil
}

// Len returns the number of cached vectors.
func (c *LRU) Len() int { return c.entries.Len() }
