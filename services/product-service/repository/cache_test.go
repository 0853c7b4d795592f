package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopswift/commerce-backend/pkg/events"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/product-service/models"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *MemoryProductRepo, *CachedProductRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := NewMemoryProductRepo(events.NewMemoryOutbox())
	return mr, backing, NewCachedProductRepo(backing, client, time.Minute, nil)
}

func TestCacheReadThrough(t *testing.T) {
	mr, _, repo := setupCache(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Product{ID: "p1", ProductName: "Widget"}))
	assert.False(t, mr.Exists(ProductCachePrefix+"p1"))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.ProductName)
	assert.True(t, mr.Exists(ProductCachePrefix+"p1"))
	assert.Equal(t, time.Minute, mr.TTL(ProductCachePrefix+"p1"))
}

func TestCacheInvalidatedOnUpdateAndDelete(t *testing.T) {
	mr, _, repo := setupCache(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Product{ID: "p1", ProductName: "Widget"}))
	_, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)

	name := "Gadget"
	_, err = repo.Update(ctx, "p1", models.ProductPatch{ProductName: &name})
	require.NoError(t, err)
	assert.False(t, mr.Exists(ProductCachePrefix+"p1"))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Gadget", got.ProductName)

	_, err = repo.Delete(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, mr.Exists(ProductCachePrefix+"p1"))

	_, err = repo.FindByID(ctx, "p1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, _, repo := setupCache(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Product{ID: "p1", ProductName: "Widget"}))
	mr.SetError("ERR cache unavailable")

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.ProductName)
}
