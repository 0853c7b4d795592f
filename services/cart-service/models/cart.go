package models

import (
	"strings"
	"time"
)

// CartItem is one product line in a user's cart.
type CartItem struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemRequest is the body of the add and update endpoints. UserID is only read when the user
// is not in the path.
type ItemRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// RemoveResponse is returned by item removal. Removed is nil when the item was not in the cart.
type RemoveResponse struct {
	Removed *CartItem `json:"removed"`
}

// NormalizeUserKey canonicalizes a cart key (username or email).
func NormalizeUserKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
