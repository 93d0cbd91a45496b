package reportcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestFetchJSONPopulatesAndServesFromCache(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return map[string]float64{"total": 935}, nil
	}

	key, err := cache.BuildKey(ctx, IncomeExpenditureKey(1, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))...)
	require.NoError(t, err)

	var first map[string]float64
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, 935.0, first["total"])

	var second map[string]float64
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 935.0, second["total"])
	require.Equal(t, 1, loads)
}

func TestBumpChangesKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "reports", "balance", "1")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "reports", "balance", "1")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilCacheFallsThroughToLoader(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	var out map[string]int
	err := cache.FetchJSON(ctx, "any", &out, func(context.Context) (any, error) {
		return map[string]int{"n": 3}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, out["n"])
	require.NoError(t, cache.Bump(ctx))
}
