package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopswift/commerce-backend/services/cart-service/models"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
)

// MemoryStore keeps carts and the product index in maps. The tombstone check and the write of
// an add share one critical section with index reads, so a product deleted before the add
// committed is always seen by one side.
type MemoryStore struct {
	locks      *KeyLock
	tombstones Tombstones
	now        func() time.Time

	mu    sync.RWMutex
	carts map[string]map[string]models.CartItem
	index map[string]map[string]struct{}
}

func NewMemoryStore(tombstones Tombstones) *MemoryStore {
	if tombstones == nil {
		tombstones = NewMemoryTombstones(0)
	}
	return &MemoryStore{
		locks:      NewKeyLock(0),
		tombstones: tombstones,
		now:        time.Now,
		carts:      map[string]map[string]models.CartItem{},
		index:      map[string]map[string]struct{}{},
	}
}

func (s *MemoryStore) Tombstones() Tombstones { return s.tombstones }

func (s *MemoryStore) AddItem(ctx context.Context, userKey, productID string, quantity int) (models.CartItem, error) {
	userKey, productID, err := validateKeys(userKey, productID)
	if err != nil {
		return models.CartItem{}, err
	}
	if err := validateQuantity(quantity); err != nil {
		return models.CartItem{}, err
	}

	unlock := s.locks.Lock(userKey)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTombstones(ctx, userKey, productID); err != nil {
		return models.CartItem{}, err
	}

	now := s.now().UTC()
	cart, ok := s.carts[userKey]
	if !ok {
		cart = map[string]models.CartItem{}
		s.carts[userKey] = cart
	}
	item, exists := cart[productID]
	if !exists {
		item = models.CartItem{UserID: userKey, ProductID: productID, CreatedAt: now}
	}
	item.Quantity = quantity
	item.UpdatedAt = now
	cart[productID] = item

	users, ok := s.index[productID]
	if !ok {
		users = map[string]struct{}{}
		s.index[productID] = users
	}
	users[userKey] = struct{}{}

	return item, nil
}

func (s *MemoryStore) checkTombstones(ctx context.Context, userKey, productID string) error {
	if marked, err := s.tombstones.IsMarked(ctx, TombstoneProduct, productID); err != nil {
		return err
	} else if marked {
		return deletedError(TombstoneProduct, productID)
	}
	if marked, err := s.tombstones.IsMarked(ctx, TombstoneUser, userKey); err != nil {
		return err
	} else if marked {
		return deletedError(TombstoneUser, userKey)
	}
	return nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, userKey, productID string, quantity int) (models.CartItem, error) {
	userKey, productID, err := validateKeys(userKey, productID)
	if err != nil {
		return models.CartItem{}, err
	}
	if err := validateQuantity(quantity); err != nil {
		return models.CartItem{}, err
	}

	unlock := s.locks.Lock(userKey)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.carts[userKey][productID]
	if !ok {
		return models.CartItem{}, apperrors.NotFound("product %s is not in the cart of %s", productID, userKey)
	}
	item.Quantity = quantity
	item.UpdatedAt = s.now().UTC()
	s.carts[userKey][productID] = item
	return item, nil
}

func (s *MemoryStore) RemoveItem(_ context.Context, userKey, productID string) (*models.CartItem, error) {
	userKey, productID, err := validateKeys(userKey, productID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userKey)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.unindexLocked(productID, userKey)
	item, ok := s.carts[userKey][productID]
	if !ok {
		return nil, nil
	}
	delete(s.carts[userKey], productID)
	if len(s.carts[userKey]) == 0 {
		delete(s.carts, userKey)
	}
	return &item, nil
}

func (s *MemoryStore) GetCart(_ context.Context, userKey string) ([]models.CartItem, error) {
	userKey, err := validateUser(userKey)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]models.CartItem, 0, len(s.carts[userKey]))
	for _, item := range s.carts[userKey] {
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

func (s *MemoryStore) ClearCart(_ context.Context, userKey string) ([]models.CartItem, error) {
	userKey, err := validateUser(userKey)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userKey)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make([]models.CartItem, 0, len(s.carts[userKey]))
	for productID, item := range s.carts[userKey] {
		removed = append(removed, item)
		s.unindexLocked(productID, userKey)
	}
	delete(s.carts, userKey)
	sortItems(removed)
	return removed, nil
}

func (s *MemoryStore) UsersWithProduct(_ context.Context, productID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.index[productID]))
	for u := range s.index[productID] {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (s *MemoryStore) unindexLocked(productID, userKey string) {
	users, ok := s.index[productID]
	if !ok {
		return
	}
	delete(users, userKey)
	if len(users) == 0 {
		delete(s.index, productID)
	}
}

// sortItems orders a cart by insertion time, product id breaking ties.
func sortItems(items []models.CartItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ProductID < items[j].ProductID
	})
}
