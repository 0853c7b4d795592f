package repository

import (
	"context"
	"sync"
	"time"

	"github.com/shopswift/commerce-backend/pkg/events"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/product-service/models"
)

// MemoryProductRepo keeps products in a map guarded by one lock shared with the outbox append.
type MemoryProductRepo struct {
	mu       sync.RWMutex
	products map[string]models.Product
	outbox   *events.MemoryOutbox
	now      func() time.Time
}

func NewMemoryProductRepo(outbox *events.MemoryOutbox) *MemoryProductRepo {
	return &MemoryProductRepo{
		products: make(map[string]models.Product),
		outbox:   outbox,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryProductRepo) Create(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.ID]; exists {
		return apperrors.Conflict("product %s already exists", product.ID)
	}
	product.CreatedAt = r.now()
	product.UpdatedAt = product.CreatedAt
	r.products[product.ID] = *product
	return nil
}

func (r *MemoryProductRepo) FindByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.NotFound("product %s not found", id)
	}
	return &p, nil
}

func (r *MemoryProductRepo) FindByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryProductRepo) Update(_ context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.NotFound("product %s not found", id)
	}
	patch.Apply(&p)
	p.UpdatedAt = r.now()
	r.products[id] = p
	return &p, nil
}

func (r *MemoryProductRepo) Delete(_ context.Context, id string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.NotFound("product %s not found", id)
	}
	delete(r.products, id)
	r.outbox.Append(events.ProductDeleted(p.ID, p.CreatedAt))
	return &p, nil
}
