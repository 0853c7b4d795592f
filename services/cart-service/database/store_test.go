package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// forEachStore runs a contract test against every CartStore implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s CartStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore(NewMemoryTombstones(time.Hour)))
	})
	t.Run("redis", func(t *testing.T) {
		fn(t, NewRedisStore(setupTestRedis(t), time.Hour, 0))
	})
}

func TestAddItemUpsertsAndIndexes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		ctx := context.Background()

		first, err := s.AddItem(ctx, "Alice@Example.com", "p1", 2)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", first.UserID)

		second, err := s.AddItem(ctx, "alice@example.com", "p1", 5)
		require.NoError(t, err)
		assert.Equal(t, 5, second.Quantity)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

		items, err := s.GetCart(ctx, "ALICE@example.com")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 5, items[0].Quantity)

		users, err := s.UsersWithProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice@example.com"}, users)
	})
}

func TestAddItemValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		ctx := context.Background()

		_, err := s.AddItem(ctx, "alice", "p1", 0)
		assert.True(t, apperrors.IsValidation(err))
		_, err = s.AddItem(ctx, "alice", "p1", -3)
		assert.True(t, apperrors.IsValidation(err))
		_, err = s.AddItem(ctx, "  ", "p1", 1)
		assert.True(t, apperrors.IsValidation(err))
		_, err = s.AddItem(ctx, "alice", "", 1)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestUpdateItem(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		ctx := context.Background()

		_, err := s.UpdateItem(ctx, "alice", "p1", 2)
		assert.True(t, apperrors.IsNotFound(err))

		_, err = s.AddItem(ctx, "alice", "p1", 1)
		require.NoError(t, err)
		updated, err := s.UpdateItem(ctx, "alice", "p1", 2)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Quantity)

		_, err = s.UpdateItem(ctx, "alice", "p1", 0)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		ctx := context.Background()
		_, err := s.AddItem(ctx, "alice", "p1", 1)
		require.NoError(t, err)

		removed, err := s.RemoveItem(ctx, "alice", "p1")
		require.NoError(t, err)
		require.NotNil(t, removed)
		assert.Equal(t, "p1", removed.ProductID)

		again, err := s.RemoveItem(ctx, "alice", "p1")
		require.NoError(t, err)
		assert.Nil(t, again)

		users, err := s.UsersWithProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}

func TestGetCartUnknownUserIsEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		items, err := s.GetCart(context.Background(), "nobody")
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestClearCartReturnsRemovedAndUnindexes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := s.AddItem(ctx, "bob", fmt.Sprintf("p%d", i), i+1)
			require.NoError(t, err)
		}
		_, err := s.AddItem(ctx, "carol", "p1", 1)
		require.NoError(t, err)

		removed, err := s.ClearCart(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, removed, 3)

		again, err := s.ClearCart(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, again)

		users, err := s.UsersWithProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"carol"}, users)
	})
}

func TestTombstonedProductRejectsAdd(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		ctx := context.Background()
		require.NoError(t, s.Tombstones().Mark(ctx, TombstoneProduct, "p1"))

		_, err := s.AddItem(ctx, "alice", "p1", 1)
		assert.True(t, apperrors.IsNotFound(err))

		users, err := s.UsersWithProduct(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}

func TestTombstonedUserRejectsAddUntilLifted(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		ctx := context.Background()
		require.NoError(t, s.Tombstones().Mark(ctx, TombstoneUser, "alice"))

		_, err := s.AddItem(ctx, "Alice", "p1", 1)
		assert.True(t, apperrors.IsNotFound(err))

		require.NoError(t, s.Tombstones().Lift(ctx, TombstoneUser, "alice"))
		_, err = s.AddItem(ctx, "Alice", "p1", 1)
		assert.NoError(t, err)
	})
}

func TestConcurrentAddsKeepIndexConsistent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s CartStore) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for u := 0; u < 10; u++ {
			for p := 0; p < 5; p++ {
				wg.Add(1)
				go func(u, p int) {
					defer wg.Done()
					_, err := s.AddItem(ctx, fmt.Sprintf("user%d", u), fmt.Sprintf("p%d", p), p+1)
					assert.NoError(t, err)
				}(u, p)
			}
		}
		wg.Wait()

		for p := 0; p < 5; p++ {
			users, err := s.UsersWithProduct(ctx, fmt.Sprintf("p%d", p))
			require.NoError(t, err)
			assert.Len(t, users, 10)
		}
		items, err := s.GetCart(ctx, "user3")
		require.NoError(t, err)
		assert.Len(t, items, 5)
	})
}

func TestRedisStoreExpiresIdleCarts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, time.Hour, time.Minute)

	_, err := s.AddItem(context.Background(), "alice", "p1", 1)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	items, err := s.GetCart(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, items)

	removed, err := s.RemoveItem(context.Background(), "alice", "p1")
	require.NoError(t, err)
	assert.Nil(t, removed)
	users, err := s.UsersWithProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, users)
}

// replicas returns two stores sharing one Redis through separate connections, the way two
// cart-service instances would.
func replicas(t *testing.T) (*RedisStore, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	newStore := func() *RedisStore {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisStore(client, time.Hour, 0)
	}
	return newStore(), newStore()
}

func TestRedisUpdateCannotReviveItemRemovedByAnotherReplica(t *testing.T) {
	ctx := context.Background()
	a, b := replicas(t)

	_, err := a.AddItem(ctx, "alice", "p1", 1)
	require.NoError(t, err)

	var once sync.Once
	a.now = func() time.Time {
		once.Do(func() {
			require.NoError(t, b.Tombstones().Mark(ctx, TombstoneProduct, "p1"))
			_, err := b.RemoveItem(ctx, "alice", "p1")
			require.NoError(t, err)
		})
		return time.Now()
	}

	_, err = a.UpdateItem(ctx, "alice", "p1", 5)
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)

	items, err := a.GetCart(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, items)
	users, err := a.UsersWithProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRedisClearAndAddAcrossReplicasKeepIndexExact(t *testing.T) {
	ctx := context.Background()
	a, b := replicas(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for p := 0; p < 30; p++ {
			_, err := a.AddItem(ctx, "alice", fmt.Sprintf("p%d", p), 1)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			_, err := b.ClearCart(ctx, "alice")
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	items, err := a.GetCart(ctx, "alice")
	require.NoError(t, err)
	inCart := map[string]bool{}
	for _, it := range items {
		inCart[it.ProductID] = true
	}
	for p := 0; p < 30; p++ {
		id := fmt.Sprintf("p%d", p)
		users, err := a.UsersWithProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, inCart[id], len(users) == 1, "index and cart disagree on %s", id)
	}
}
