package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopswift/commerce-backend/services/cart-service/controllers"
	"github.com/shopswift/commerce-backend/services/cart-service/database"
	"github.com/shopswift/commerce-backend/services/cart-service/models"
	"github.com/shopswift/commerce-backend/services/cart-service/routes"
)

func setupRouter(t *testing.T) (*gin.Engine, *database.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := database.NewMemoryStore(database.NewMemoryTombstones(time.Hour))
	r := gin.New()
	routes.RegisterCartRoutes(r, controllers.NewCartController(store, nil))
	return r, store
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAddItemByPathReturns201(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodPost, "/cart/alice/item", gin.H{"product_id": "p1", "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code)

	var item models.CartItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, "alice", item.UserID)
	assert.Equal(t, "p1", item.ProductID)
	assert.Equal(t, 2, item.Quantity)
}

func TestAddItemByBodyLowercasesUser(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodPost, "/cart/item", gin.H{"user_id": "Jane.Doe@Example.com", "product_id": "p1", "quantity": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"jane.doe@example.com"`)

	w = do(r, http.MethodGet, "/cart?id=jane.doe@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.CartItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 1)
}

func TestAddItemRejectsBadInput(t *testing.T) {
	r, _ := setupRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/cart/alice/item", gin.H{"product_id": "p1", "quantity": 0}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/cart/item", gin.H{"product_id": "p1", "quantity": 1}).Code)

	req := httptest.NewRequest(http.MethodPost, "/cart/alice/item", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddItemForDeletedProductIs404(t *testing.T) {
	r, store := setupRouter(t)
	require.NoError(t, store.Tombstones().Mark(context.Background(), database.TombstoneProduct, "gone"))

	w := do(r, http.MethodPost, "/cart/alice/item", gin.H{"product_id": "gone", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetUnknownCartIsEmptyArray(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodGet, "/cart/nobody", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUpdateItemBothForms(t *testing.T) {
	r, _ := setupRouter(t)
	do(r, http.MethodPost, "/cart/alice/item", gin.H{"product_id": "p1", "quantity": 1})

	w := do(r, http.MethodPatch, "/cart/alice/item/p1", gin.H{"quantity": 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"quantity":3`)

	w = do(r, http.MethodPatch, "/cart/item", gin.H{"user_id": "alice", "product_id": "p1", "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"quantity":2`)

	w = do(r, http.MethodPatch, "/cart/alice/item/p404", gin.H{"quantity": 3})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveItemByQuery(t *testing.T) {
	r, _ := setupRouter(t)
	do(r, http.MethodPost, "/cart/item", gin.H{"user_id": "bob@example.com", "product_id": "p1", "quantity": 1})

	w := do(r, http.MethodDelete, "/cart/item?product_id=p1&email=bob@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"product_id":"p1"`)

	w = do(r, http.MethodDelete, "/cart/item?product_id=p1&email=bob@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":null}`, w.Body.String())

	w = do(r, http.MethodDelete, "/cart/item?email=bob@example.com", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearCartBothForms(t *testing.T) {
	r, _ := setupRouter(t)
	for _, p := range []string{"p1", "p2"} {
		do(r, http.MethodPost, "/cart/alice/item", gin.H{"product_id": p, "quantity": 1})
		do(r, http.MethodPost, "/cart/bob/item", gin.H{"product_id": p, "quantity": 1})
	}

	w := do(r, http.MethodDelete, "/cart/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var removed []models.CartItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &removed))
	assert.Len(t, removed, 2)

	w = do(r, http.MethodDelete, "/cart?id=bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/cart/bob", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}
