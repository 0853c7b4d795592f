package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/pkg/events"
	cartapp "github.com/shopswift/commerce-backend/services/cart-service/app"
	cartconfig "github.com/shopswift/commerce-backend/services/cart-service/config"
	productapp "github.com/shopswift/commerce-backend/services/product-service/app"
	productconfig "github.com/shopswift/commerce-backend/services/product-service/config"
	userapp "github.com/shopswift/commerce-backend/services/user-service/app"
	userconfig "github.com/shopswift/commerce-backend/services/user-service/config"
)

// stackConfig holds the per-service settings. Store selections are forced to memory.
type stackConfig struct {
	User    userconfig.Config
	Product productconfig.Config
	Cart    cartconfig.Config
	Bus     events.MemoryBusConfig
}

// stack is the three services sharing one in-process bus.
type stack struct {
	Bus     *events.MemoryBus
	User    *userapp.App
	Product *productapp.App
	Cart    *cartapp.App
}

func newStack(cfg stackConfig, logger *zap.Logger, metrics awspkg.Recorder) (*stack, error) {
	cfg.User.UserStore = "memory"
	cfg.Product.ProductStore = "memory"
	cfg.Cart.CartStore = "memory"

	bus := events.NewMemoryBus(cfg.Bus, logger.Named("bus"))

	users, err := userapp.New(cfg.User, userapp.Deps{Logger: logger.Named("user"), Metrics: metrics, Publisher: bus})
	if err != nil {
		return nil, fmt.Errorf("user service: %w", err)
	}
	products, err := productapp.New(cfg.Product, productapp.Deps{Logger: logger.Named("product"), Metrics: metrics, Publisher: bus})
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}
	carts, err := cartapp.New(cfg.Cart, cartapp.Deps{Logger: logger.Named("cart"), Metrics: metrics, Events: bus})
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	return &stack{Bus: bus, User: users, Product: products, Cart: carts}, nil
}

// Routes mounts every service on r. The route sets do not overlap.
func (s *stack) Routes(r gin.IRouter) {
	s.User.Routes(r)
	s.Product.Routes(r)
	s.Cart.Routes(r)
}

// Run starts both relays and the cascade worker and blocks until ctx is done.
func (s *stack) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.User.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.Product.Run(ctx)
	}()

	err := s.Cart.Run(ctx)
	wg.Wait()
	return err
}
