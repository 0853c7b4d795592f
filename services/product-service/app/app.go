// Package app wires the product service: repository, optional cache, outbox relay and HTTP handlers.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/product-service/config"
	"github.com/shopswift/commerce-backend/services/product-service/controllers"
	"github.com/shopswift/commerce-backend/services/product-service/repository"
	"github.com/shopswift/commerce-backend/services/product-service/routes"
	"github.com/shopswift/commerce-backend/services/product-service/services"
)

// Deps are the external resources the service runs on. Dynamo is required when
// cfg.ProductStore is "dynamodb"; Redis enables the product cache.
type Deps struct {
	Logger    *zap.Logger
	Metrics   awspkg.Recorder
	Publisher events.Publisher
	Dynamo    repository.DynamoAPI
	Redis     *redis.Client
}

type App struct {
	Repo  repository.ProductRepo
	Relay *events.Relay

	products *controllers.ProductController
}

func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = awspkg.NopRecorder{}
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("product service needs an event publisher")
	}

	var (
		repo   repository.ProductRepo
		outbox events.Outbox
	)
	switch cfg.ProductStore {
	case "dynamodb":
		if deps.Dynamo == nil {
			return nil, fmt.Errorf("PRODUCT_STORE=dynamodb needs a DynamoDB client")
		}
		ddbOutbox := repository.NewDynamoOutbox(deps.Dynamo, cfg.OutboxTable, "product")
		repo = repository.NewDynamoAdapter(deps.Dynamo, cfg.DDBTable, ddbOutbox)
		outbox = ddbOutbox
	case "", "memory":
		mem := events.NewMemoryOutbox()
		repo = repository.NewMemoryProductRepo(mem)
		outbox = mem
	default:
		return nil, fmt.Errorf("unknown PRODUCT_STORE %q", cfg.ProductStore)
	}
	if deps.Redis != nil {
		repo = repository.NewCachedProductRepo(repo, deps.Redis, cfg.CacheTTL, deps.Logger.Named("cache"))
	}

	relay := events.NewRelay(outbox, deps.Publisher, events.RelayConfig{
		Name:      "product-outbox",
		Interval:  cfg.RelayInterval,
		BatchSize: cfg.RelayBatch,
		Metrics:   deps.Metrics,
	}, deps.Logger.Named("relay"))

	service := services.NewProductService(repo, deps.Metrics, deps.Logger)
	return &App{
		Repo:     repo,
		Relay:    relay,
		products: controllers.NewProductController(service, deps.Logger),
	}, nil
}

func (a *App) Routes(r gin.IRouter) {
	routes.RegisterProductRoutes(r, a.products)
	r.GET("/admin/outbox/product", a.outboxStatus)
}

// outboxStatus reports whether the relay breaker is letting publishes through.
func (a *App) outboxStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"relay": "product-outbox", "breaker": a.Relay.BreakerState().String()})
}

// Run relays outbox events until ctx is done.
func (a *App) Run(ctx context.Context) {
	a.Relay.Start(ctx)
}
