package repository

import (
	"context"

	"github.com/shopswift/commerce-backend/services/product-service/models"
)

// ProductRepo is the product store. Delete appends product_deleted to the outbox atomically
// with removing the product.
type ProductRepo interface {
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id string) (*models.Product, error)
	// FindByIDs returns the products that exist, in request order, skipping missing ids.
	FindByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	Update(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error)
	Delete(ctx context.Context, id string) (*models.Product, error)
}
