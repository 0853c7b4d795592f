package database

import (
	"context"
	"strings"

	"github.com/shopswift/commerce-backend/services/cart-service/models"

	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
)

// CartStore owns carts and the product -> users index. Every mutation for one user key is
// serialized, and the index always reflects the committed carts.
type CartStore interface {
	// AddItem upserts an item; quantity replaces. Rejected with NotFound when the product or
	// user has been deleted.
	AddItem(ctx context.Context, userKey, productID string, quantity int) (models.CartItem, error)
	// UpdateItem changes the quantity of an existing item.
	UpdateItem(ctx context.Context, userKey, productID string, quantity int) (models.CartItem, error)
	// RemoveItem is idempotent; it returns the removed item or nil.
	RemoveItem(ctx context.Context, userKey, productID string) (*models.CartItem, error)
	// GetCart returns the items of a cart, an empty slice for unknown users.
	GetCart(ctx context.Context, userKey string) ([]models.CartItem, error)
	// ClearCart is idempotent and returns the removed items.
	ClearCart(ctx context.Context, userKey string) ([]models.CartItem, error)
	// UsersWithProduct reads the secondary index.
	UsersWithProduct(ctx context.Context, productID string) ([]string, error)
	// Tombstones returns the tombstone set consulted by AddItem.
	Tombstones() Tombstones
}

func validateKeys(userKey, productID string) (string, string, error) {
	userKey = models.NormalizeUserKey(userKey)
	productID = strings.TrimSpace(productID)
	if userKey == "" {
		return "", "", apperrors.Validation("user id is required")
	}
	if productID == "" {
		return "", "", apperrors.Validation("product_id is required")
	}
	return userKey, productID, nil
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return apperrors.Validation("quantity must be greater than zero")
	}
	return nil
}

func validateUser(userKey string) (string, error) {
	userKey = models.NormalizeUserKey(userKey)
	if userKey == "" {
		return "", apperrors.Validation("user id is required")
	}
	return userKey, nil
}

func deletedError(kind TombstoneKind, key string) error {
	return apperrors.NotFound("%s %s has been deleted", kind, key)
}
