package convergence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Item is the part of a cart item the observer looks at.
type Item struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartClient reads carts over the cart service's HTTP API.
type CartClient struct {
	baseURL string
	http    *http.Client
}

func NewCartClient(baseURL string, httpClient *http.Client) *CartClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &CartClient{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// GetCart fetches the cart of user.
func (c *CartClient) GetCart(ctx context.Context, user string) ([]Item, error) {
	u := fmt.Sprintf("%s/cart/%s", c.baseURL, url.PathEscape(user))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cart service returned %d", resp.StatusCode)
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return items, nil
}

// WaitForEmptyCart polls until the cart of user has no items.
func (c *CartClient) WaitForEmptyCart(ctx context.Context, user string, p Policy) (Result, error) {
	return Poll(ctx, p, func(ctx context.Context) (bool, error) {
		items, err := c.GetCart(ctx, user)
		if err != nil {
			return false, err
		}
		return len(items) == 0, nil
	})
}

// WaitForProductGone polls until none of the given carts holds productID.
func (c *CartClient) WaitForProductGone(ctx context.Context, productID string, users []string, p Policy) (Result, error) {
	return Poll(ctx, p, func(ctx context.Context) (bool, error) {
		for _, u := range users {
			items, err := c.GetCart(ctx, u)
			if err != nil {
				return false, err
			}
			for _, it := range items {
				if it.ProductID == productID {
					return false, nil
				}
			}
		}
		return true, nil
	})
}
