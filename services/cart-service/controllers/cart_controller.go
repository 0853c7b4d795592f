package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopswift/commerce-backend/services/cart-service/database"
	"github.com/shopswift/commerce-backend/services/cart-service/models"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/common/logger"
)

type CartController struct {
	Store  database.CartStore
	Logger *zap.Logger
}

func NewCartController(store database.CartStore, log *zap.Logger) *CartController {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartController{Store: store, Logger: log}
}

// userKey resolves the cart owner from the path, then ?id= or ?email=, then the body.
func userKey(c *gin.Context, fromBody string) string {
	if u := c.Param("user"); u != "" {
		return u
	}
	if u := c.Query("id"); u != "" {
		return u
	}
	if u := c.Query("email"); u != "" {
		return u
	}
	return fromBody
}

func (cc *CartController) fail(c *gin.Context, op string, err error) {
	log := logger.FromContext(c.Request.Context(), cc.Logger)
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	} else {
		log.Debug(op+" rejected", zap.Error(err))
	}
	apperrors.Respond(c, err)
}

func bindItem(c *gin.Context) (models.ItemRequest, bool) {
	var req models.ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Validation("invalid payload"))
		return req, false
	}
	return req, true
}

// AddItem handles POST /cart/:user/item and POST /cart/item.
func (cc *CartController) AddItem(c *gin.Context) {
	req, ok := bindItem(c)
	if !ok {
		return
	}

	item, err := cc.Store.AddItem(c.Request.Context(), userKey(c, req.UserID), req.ProductID, req.Quantity)
	if err != nil {
		cc.fail(c, "add item", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// GetCart handles GET /cart/:user and GET /cart?id=.
func (cc *CartController) GetCart(c *gin.Context) {
	items, err := cc.Store.GetCart(c.Request.Context(), userKey(c, ""))
	if err != nil {
		cc.fail(c, "get cart", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// UpdateItem handles PATCH /cart/:user/item/:product_id and PATCH /cart/item.
func (cc *CartController) UpdateItem(c *gin.Context) {
	req, ok := bindItem(c)
	if !ok {
		return
	}
	productID := c.Param("product_id")
	if productID == "" {
		productID = req.ProductID
	}

	item, err := cc.Store.UpdateItem(c.Request.Context(), userKey(c, req.UserID), productID, req.Quantity)
	if err != nil {
		cc.fail(c, "update item", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// RemoveItem handles DELETE /cart/:user/item/:product_id and DELETE /cart/item?product_id=&email=.
func (cc *CartController) RemoveItem(c *gin.Context) {
	productID := c.Param("product_id")
	if productID == "" {
		productID = c.Query("product_id")
	}

	removed, err := cc.Store.RemoveItem(c.Request.Context(), userKey(c, ""), productID)
	if err != nil {
		cc.fail(c, "remove item", err)
		return
	}
	c.JSON(http.StatusOK, models.RemoveResponse{Removed: removed})
}

// ClearCart handles DELETE /cart/:user and DELETE /cart?id=.
func (cc *CartController) ClearCart(c *gin.Context) {
	removed, err := cc.Store.ClearCart(c.Request.Context(), userKey(c, ""))
	if err != nil {
		cc.fail(c, "clear cart", err)
		return
	}
	c.JSON(http.StatusOK, removed)
}
