package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/codeframe/domain/embedding"
)

func TestLRU_GetManyReturnsHitsOnly(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(2)
	require.NoError(t, err)

	a := embedding.NewEntry("a", "m", []float64{1, 2})
	b := embedding.NewEntry("b", "m", []float64{3, 4})
	other := embedding.NewEntry("a", "other-model", []float64{9})
	require.NoError(t, c.SetMany(ctx, []embedding.Entry{a, b}))

	got, err := c.GetMany(ctx, []embedding.Key{a.Key(), b.Key(), other.Key()})
	require.NoError(t, err)
	assert.Equal(t, map[embedding.Key][]float64{
		a.Key(): {1, 2},
		b.Key(): {3, 4},
	}, got)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(2)
	require.NoError(t, err)

	a := embedding.NewEntry("a", "m", []float64{1})
	b := embedding.NewEntry("b", "m", []float64{2})
	d := embedding.NewEntry("d", "m", []float64{3})
	require.NoError(t, c.SetMany(ctx, []embedding.Entry{a, b}))
	_, err = c.GetMany(ctx, []embedding.Key{a.Key()})
	require.NoError(t, err)
	require.NoError(t, c.SetMany(ctx, []embedding.Entry{d}))

	got, err := c.GetMany(ctx, []embedding.Key{a.Key(), b.Key(), d.Key()})
	require.NoError(t, err)
	assert.Contains(t, got, a.Key())
	assert.NotContains(t, got, b.Key())
	assert.Contains(t, got, d.Key())
	assert.Equal(t, 2, c.Len())
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisWithClient(client, time.Hour, nil)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedis_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, c := newMiniRedis(t)

	a := embedding.NewEntry("a", "m", []float64{0.5, -0.25})
	require.NoError(t, c.SetMany(ctx, []embedding.Entry{a}))
	assert.True(t, mr.Exists(keyPrefix+"m:a"))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"m:a"))

	got, err := c.GetMany(ctx, []embedding.Key{a.Key(), {TextHash: "missing", ModelID: "m"}})
	require.NoError(t, err)
	assert.Equal(t, map[embedding.Key][]float64{a.Key(): {0.5, -0.25}}, got)
}

func TestRedis_SkipsCorruptValues(t *testing.T) {
	ctx := context.Background()
	mr, c := newMiniRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"m:bad", "not json"))

	got, err := c.GetMany(ctx, []embedding.Key{{TextHash: "bad", ModelID: "m"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedis_ReportsUnavailableServer(t *testing.T) {
	ctx := context.Background()
	mr, c := newMiniRedis(t)
	mr.Close()

	_, err := c.GetMany(ctx, []embedding.Key{{TextHash: "a", ModelID: "m"}})
	assert.Error(t, err)
}

func TestNewRedis_RejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", 0, nil)
	assert.Error(t, err)
}
