package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopswift/commerce-backend/services/product-service/models"
)

const ProductCachePrefix = "product:detail:"

// CachedProductRepo is a read-through Redis cache in front of a ProductRepo. Writes go to
// the backing repo first and then drop the cached entry, so a read after a delete or update
// never serves the old product. Cache errors degrade to a direct read.
type CachedProductRepo struct {
	ProductRepo
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProductRepo(next ProductRepo, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProductRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProductRepo{ProductRepo: next, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedProductRepo) FindByID(ctx context.Context, id string) (*models.Product, error) {
	if p, ok := c.get(ctx, id); ok {
		return p, nil
	}
	p, err := c.ProductRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, p)
	return p, nil
}

func (c *CachedProductRepo) Update(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	p, err := c.ProductRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, id)
	return p, nil
}

func (c *CachedProductRepo) Delete(ctx context.Context, id string) (*models.Product, error) {
	p, err := c.ProductRepo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, id)
	return p, nil
}

func (c *CachedProductRepo) get(ctx context.Context, id string) (*models.Product, bool) {
	raw, err := c.redis.Get(ctx, ProductCachePrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("product cache read failed", zap.String("product_id", id), zap.Error(err))
		}
		return nil, false
	}
	var p models.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn("failed to unmarshal cached product", zap.String("product_id", id), zap.Error(err))
		return nil, false
	}
	return &p, true
}

func (c *CachedProductRepo) set(ctx context.Context, p *models.Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, ProductCachePrefix+p.ID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache product", zap.String("product_id", p.ID), zap.Error(err))
	}
}

func (c *CachedProductRepo) invalidate(ctx context.Context, id string) {
	if err := c.redis.Del(ctx, ProductCachePrefix+id).Err(); err != nil {
		c.logger.Error("failed to invalidate product cache", zap.String("product_id", id), zap.Error(err))
	}
}
