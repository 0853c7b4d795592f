package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/common/logger"
	"github.com/shopswift/commerce-backend/services/product-service/models"
	"github.com/shopswift/commerce-backend/services/product-service/services"
)

type ProductController struct {
	service   *services.ProductService
	validator *RequestValidator
	logger    *zap.Logger
}

func NewProductController(service *services.ProductService, log *zap.Logger) *ProductController {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductController{service: service, validator: NewRequestValidator(), logger: log}
}

func (pc *ProductController) fail(c *gin.Context, op string, err error) {
	log := logger.FromContext(c.Request.Context(), pc.logger)
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	} else {
		log.Debug(op+" rejected", zap.Error(err))
	}
	apperrors.Respond(c, err)
}

// CreateProduct handles POST /product.
func (pc *ProductController) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := pc.validator.BindJSON(c, &req); err != nil {
		apperrors.Respond(c, err)
		return
	}

	product, err := pc.service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		pc.fail(c, "create product", err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// GetProduct handles GET /product?id=. A single id returns the product or 404; repeated ids
// return {"products": [...]} with missing ids skipped.
func (pc *ProductController) GetProduct(c *gin.Context) {
	ids := c.QueryArray("id")
	switch len(ids) {
	case 0:
		apperrors.Respond(c, apperrors.Validation("id is required"))
	case 1:
		product, err := pc.service.GetProduct(c.Request.Context(), ids[0])
		if err != nil {
			pc.fail(c, "get product", err)
			return
		}
		c.JSON(http.StatusOK, product)
	default:
		products, err := pc.service.GetProducts(c.Request.Context(), ids)
		if err != nil {
			pc.fail(c, "get products", err)
			return
		}
		c.JSON(http.StatusOK, models.BatchResponse{Products: products})
	}
}

// GetProductByID handles GET /product/:id.
func (pc *ProductController) GetProductByID(c *gin.Context) {
	product, err := pc.service.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		pc.fail(c, "get product", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// UpdateProduct handles PUT /product/:id.
func (pc *ProductController) UpdateProduct(c *gin.Context) {
	var patch models.ProductPatch
	if err := pc.validator.BindJSON(c, &patch); err != nil {
		apperrors.Respond(c, err)
		return
	}

	product, err := pc.service.UpdateProduct(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		pc.fail(c, "update product", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DeleteProduct handles DELETE /product/:id and returns the deleted product.
func (pc *ProductController) DeleteProduct(c *gin.Context) {
	product, err := pc.service.DeleteProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		pc.fail(c, "delete product", err)
		return
	}
	c.JSON(http.StatusOK, product)
}
