package provider

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextEmbedder(t *testing.T) {
	var counter atomic.Int64
	e := NewTextEmbedder(newTestProvider(t, embeddingHandler(&counter), 0))

	vectors, err := e.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1, 1}, {1, 2, 1}}, vectors)
	assert.Equal(t, int64(1), counter.Load())
}
