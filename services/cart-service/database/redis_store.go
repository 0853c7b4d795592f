package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopswift/commerce-backend/services/cart-service/models"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
)

const maxWatchRetries = 10

// RedisStore keeps each cart as a hash cart:user:<key> (product id -> JSON item) and the index
// as a set cart:product:<id> of user keys. Cart and index writes go out in one MULTI/EXEC.
// Read-modify-write operations WATCH the cart key and the relevant tombstones, so a change
// made by another replica between the read and the write aborts and retries the transaction.
// The KeyLock only saves those retries within one process.
type RedisStore struct {
	client     *redis.Client
	locks      *KeyLock
	tombstones *RedisTombstones
	ttl        time.Duration
	now        func() time.Time
}

// NewRedisStore builds the store. Tombstones live in the same Redis so they can be watched.
// ttl, when positive, expires idle carts.
func NewRedisStore(client *redis.Client, tombstoneTTL, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		locks:      NewKeyLock(0),
		tombstones: NewRedisTombstones(client, tombstoneTTL),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (s *RedisStore) Tombstones() Tombstones { return s.tombstones }

func (s *RedisStore) getKey(userKey string) string {
	return fmt.Sprintf("cart:user:%s", userKey)
}

func (s *RedisStore) indexKey(productID string) string {
	return fmt.Sprintf("cart:product:%s", productID)
}

func (s *RedisStore) AddItem(ctx context.Context, userKey, productID string, quantity int) (models.CartItem, error) {
	userKey, productID, err := validateKeys(userKey, productID)
	if err != nil {
		return models.CartItem{}, err
	}
	if err := validateQuantity(quantity); err != nil {
		return models.CartItem{}, err
	}

	unlock := s.locks.Lock(userKey)
	defer unlock()

	productTomb := tombstoneKey(TombstoneProduct, productID)
	userTomb := tombstoneKey(TombstoneUser, userKey)
	cartKey := s.getKey(userKey)

	var item models.CartItem
	txf := func(tx *redis.Tx) error {
		if n, err := tx.Exists(ctx, productTomb).Result(); err != nil {
			return err
		} else if n > 0 {
			return deletedError(TombstoneProduct, productID)
		}
		if n, err := tx.Exists(ctx, userTomb).Result(); err != nil {
			return err
		} else if n > 0 {
			return deletedError(TombstoneUser, userKey)
		}

		existing, err := readItem(tx.HGet(ctx, cartKey, productID))
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if existing != nil {
			item = *existing
		} else {
			item = models.CartItem{UserID: userKey, ProductID: productID, CreatedAt: now}
		}
		item.Quantity = quantity
		item.UpdatedAt = now

		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, cartKey, productID, data)
			pipe.SAdd(ctx, s.indexKey(productID), userKey)
			if s.ttl > 0 {
				pipe.Expire(ctx, cartKey, s.ttl)
			}
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, cartKey, productTomb, userTomb); err != nil {
		if apperrors.IsNotFound(err) {
			return models.CartItem{}, err
		}
		return models.CartItem{}, fmt.Errorf("add item to cart %s: %w", userKey, err)
	}
	return item, nil
}

// watch runs txf under WATCH on keys, retrying when another client touched one of them
// between the reads in txf and its EXEC.
func (s *RedisStore) watch(ctx context.Context, txf func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (s *RedisStore) UpdateItem(ctx context.Context, userKey, productID string, quantity int) (models.CartItem, error) {
	userKey, productID, err := validateKeys(userKey, productID)
	if err != nil {
		return models.CartItem{}, err
	}
	if err := validateQuantity(quantity); err != nil {
		return models.CartItem{}, err
	}

	unlock := s.locks.Lock(userKey)
	defer unlock()

	productTomb := tombstoneKey(TombstoneProduct, productID)
	cartKey := s.getKey(userKey)

	var item models.CartItem
	txf := func(tx *redis.Tx) error {
		if n, err := tx.Exists(ctx, productTomb).Result(); err != nil {
			return err
		} else if n > 0 {
			return deletedError(TombstoneProduct, productID)
		}
		existing, err := readItem(tx.HGet(ctx, cartKey, productID))
		if err != nil {
			return err
		}
		if existing == nil {
			return apperrors.NotFound("product %s is not in the cart of %s", productID, userKey)
		}

		item = *existing
		item.Quantity = quantity
		item.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, cartKey, productID, data)
			if s.ttl > 0 {
				pipe.Expire(ctx, cartKey, s.ttl)
			}
			return nil
		})
		return err
	}

	// a cascade removal from another replica touches the cart key, so the write cannot revive it
	if err := s.watch(ctx, txf, cartKey, productTomb); err != nil {
		if apperrors.IsNotFound(err) {
			return models.CartItem{}, err
		}
		return models.CartItem{}, fmt.Errorf("update cart %s: %w", userKey, err)
	}
	return item, nil
}

func (s *RedisStore) RemoveItem(ctx context.Context, userKey, productID string) (*models.CartItem, error) {
	userKey, productID, err := validateKeys(userKey, productID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userKey)
	defer unlock()

	cartKey := s.getKey(userKey)
	existing, err := readItem(s.client.HGet(ctx, cartKey, productID))
	if err != nil {
		return nil, fmt.Errorf("read cart %s: %w", userKey, err)
	}

	// the index entry is dropped even when the item is gone, which also heals entries left by expired carts
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, cartKey, productID)
		pipe.SRem(ctx, s.indexKey(productID), userKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove item from cart %s: %w", userKey, err)
	}
	return existing, nil
}

func (s *RedisStore) GetCart(ctx context.Context, userKey string) ([]models.CartItem, error) {
	userKey, err := validateUser(userKey)
	if err != nil {
		return nil, err
	}
	items, err := readCart(ctx, s.client, s.getKey(userKey))
	if err != nil {
		return nil, fmt.Errorf("read cart %s: %w", userKey, err)
	}
	return items, nil
}

func (s *RedisStore) ClearCart(ctx context.Context, userKey string) ([]models.CartItem, error) {
	userKey, err := validateUser(userKey)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userKey)
	defer unlock()

	cartKey := s.getKey(userKey)
	var items []models.CartItem
	txf := func(tx *redis.Tx) error {
		var err error
		items, err = readCart(ctx, tx, cartKey)
		if err != nil || len(items) == 0 {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, cartKey)
			for _, it := range items {
				pipe.SRem(ctx, s.indexKey(it.ProductID), userKey)
			}
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, cartKey); err != nil {
		return nil, fmt.Errorf("clear cart %s: %w", userKey, err)
	}
	return items, nil
}

func (s *RedisStore) UsersWithProduct(ctx context.Context, productID string) ([]string, error) {
	users, err := s.client.SMembers(ctx, s.indexKey(productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read index for product %s: %w", productID, err)
	}
	sort.Strings(users)
	return users, nil
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readCart(ctx context.Context, c hashReader, cartKey string) ([]models.CartItem, error) {
	raw, err := c.HGetAll(ctx, cartKey).Result()
	if err != nil {
		return nil, err
	}

	items := make([]models.CartItem, 0, len(raw))
	for productID, data := range raw {
		var item models.CartItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("decode item %s: %w", productID, err)
		}
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

func readItem(cmd *redis.StringCmd) (*models.CartItem, error) {
	data, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item models.CartItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, err
	}
	return &item, nil
}
