package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopswift/commerce-backend/pkg/events"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/product-service/models"
	"github.com/shopswift/commerce-backend/services/product-service/repository"
)

// countingRepo records the ids passed to FindByIDs.
type countingRepo struct {
	repository.ProductRepo
	batches [][]string
}

func (r *countingRepo) FindByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	r.batches = append(r.batches, ids)
	return r.ProductRepo.FindByIDs(ctx, ids)
}

func newService() (*ProductService, *countingRepo) {
	repo := &countingRepo{ProductRepo: repository.NewMemoryProductRepo(events.NewMemoryOutbox())}
	return NewProductService(repo, nil, nil), repo
}

func TestCreateProductAssignsID(t *testing.T) {
	svc, _ := newService()
	price := int64(500)

	a, err := svc.CreateProduct(context.Background(), models.CreateProductRequest{ProductName: "A", PriceCents: &price})
	require.NoError(t, err)
	b, err := svc.CreateProduct(context.Background(), models.CreateProductRequest{ProductName: "B", PriceCents: &price})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGetProductsDedupes(t *testing.T) {
	svc, repo := newService()
	price := int64(1)
	p, err := svc.CreateProduct(context.Background(), models.CreateProductRequest{ProductName: "A", PriceCents: &price})
	require.NoError(t, err)

	got, err := svc.GetProducts(context.Background(), []string{p.ID, "", "x", p.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, repo.batches, 1)
	assert.Equal(t, []string{p.ID, "x"}, repo.batches[0])
}

func TestUpdateProductRejectsEmptyPatch(t *testing.T) {
	svc, _ := newService()
	_, err := svc.UpdateProduct(context.Background(), "p1", models.ProductPatch{})
	assert.True(t, apperrors.IsValidation(err))
}
