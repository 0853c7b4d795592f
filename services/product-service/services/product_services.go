package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/product-service/models"
	"github.com/shopswift/commerce-backend/services/product-service/repository"
)

// ProductService holds the product use cases on top of a ProductRepo.
type ProductService struct {
	repo    repository.ProductRepo
	metrics awspkg.Recorder
	logger  *zap.Logger
}

func NewProductService(repo repository.ProductRepo, metrics awspkg.Recorder, logger *zap.Logger) *ProductService {
	if metrics == nil {
		metrics = awspkg.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{repo: repo, metrics: metrics, logger: logger}
}

func (s *ProductService) CreateProduct(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	p := &models.Product{
		ID:          uuid.NewString(),
		ProductName: req.ProductName,
		Description: req.Description,
		PriceCents:  *req.PriceCents,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	_ = s.metrics.RecordCount(ctx, awspkg.MetricProductsCreated, nil)
	return p, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.FindByID(ctx, id)
}

// GetProducts returns the existing products among ids, in first-seen order.
func (s *ProductService) GetProducts(ctx context.Context, ids []string) ([]models.Product, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return s.repo.FindByIDs(ctx, unique)
}

func (s *ProductService) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	if patch.Empty() {
		return nil, apperrors.Validation("No update parameters specified")
	}
	return s.repo.Update(ctx, id, patch)
}

// DeleteProduct removes the product. Carts holding it are cleaned up asynchronously once the
// product_deleted event is relayed.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = s.metrics.RecordCount(ctx, awspkg.MetricProductsDeleted, nil)
	s.logger.Info("product deleted", zap.String("product_id", id))
	return p, nil
}
