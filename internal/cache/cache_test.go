package cache

import (
	"context"
	"testing"
	"time"

	"shopsy-inventory-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	c.removeExpired()
	assert.Zero(t, c.Len())
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	require.NoError(t, c.Delete(ctx, "k", "missing"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestStockCacheRoundTripAndInvalidate(t *testing.T) {
	mem := NewMemoryCache(time.Hour)
	defer mem.Close()
	sc := NewStockCache(mem, "test", time.Minute)
	ctx := context.Background()

	rec := model.StockRecord{ID: "rec-1", ProductID: "prod-1", QuantityAvailable: 4, LowStockThreshold: 5}
	rec.Refresh(time.Now().UTC())
	require.NoError(t, sc.Put(ctx, rec, sc.Generation("prod-1")))

	got, ok := sc.Get(ctx, "prod-1")
	require.True(t, ok)
	assert.Equal(t, 4, got.QuantityAvailable)
	assert.Equal(t, model.StatusLowStock, got.Status)

	require.NoError(t, sc.Invalidate(ctx, "prod-1"))
	_, ok = sc.Get(ctx, "prod-1")
	assert.False(t, ok)
}

func TestStockCacheDisabled(t *testing.T) {
	mem := NewMemoryCache(time.Hour)
	defer mem.Close()
	sc := NewStockCache(mem, "", 0)

	require.NoError(t, sc.Put(context.Background(), model.StockRecord{ProductID: "p"}, 0))
	assert.Zero(t, mem.Len())

	var nilCache *StockCache
	_, ok := nilCache.Get(context.Background(), "p")
	assert.False(t, ok)
}

func TestStockCacheDropsFillAfterInvalidate(t *testing.T) {
	mem := NewMemoryCache(time.Hour)
	defer mem.Close()
	sc := NewStockCache(mem, "test", time.Minute)
	ctx := context.Background()

	gen := sc.Generation("prod-1")
	require.NoError(t, sc.Invalidate(ctx, "prod-1"))
	require.NoError(t, sc.Put(ctx, model.StockRecord{ProductID: "prod-1", QuantityAvailable: 20}, gen))

	_, ok := sc.Get(ctx, "prod-1")
	assert.False(t, ok)
	assert.Zero(t, mem.Len())

	require.NoError(t, sc.Put(ctx, model.StockRecord{ProductID: "prod-1", QuantityAvailable: 5}, sc.Generation("prod-1")))
	got, ok := sc.Get(ctx, "prod-1")
	require.True(t, ok)
	assert.Equal(t, 5, got.QuantityAvailable)
}
