// Package app wires the cart service: store, cascade worker, sweeper and HTTP handlers.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/cart-service/cascade"
	"github.com/shopswift/commerce-backend/services/cart-service/config"
	"github.com/shopswift/commerce-backend/services/cart-service/controllers"
	"github.com/shopswift/commerce-backend/services/cart-service/database"
	"github.com/shopswift/commerce-backend/services/cart-service/routes"
)

// Deps are the external resources the service runs on. Redis is required when
// cfg.CartStore is "redis".
type Deps struct {
	Logger  *zap.Logger
	Metrics awspkg.Recorder
	Events  events.Subscriber
	Redis   *redis.Client
}

type App struct {
	Store   database.CartStore
	Worker  *cascade.Worker
	Sweeper *cascade.Sweeper

	cart   *controllers.CartController
	admin  *controllers.AdminController
	events events.Subscriber
	logger *zap.Logger
}

func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = awspkg.NopRecorder{}
	}

	var (
		store  database.CartStore
		ledger database.Ledger
	)
	switch cfg.CartStore {
	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("CART_STORE=redis needs a redis client")
		}
		store = database.NewRedisStore(deps.Redis, cfg.TombstoneTTL, cfg.CartTTL)
		ledger = database.NewRedisLedger(deps.Redis, cfg.LedgerTTL)
	case "", "memory":
		store = database.NewMemoryStore(database.NewMemoryTombstones(cfg.TombstoneTTL))
		ledger = database.NewMemoryLedger(cfg.LedgerTTL)
	default:
		return nil, fmt.Errorf("unknown CART_STORE %q", cfg.CartStore)
	}
	if !cfg.LedgerEnabled {
		ledger = nil
	}

	worker := cascade.NewWorker(store, ledger, cascade.Config{Concurrency: cfg.CascadeConcurrency}, deps.Logger.Named("cascade"), deps.Metrics)
	sweeper := cascade.NewSweeper(store, cascade.SweeperConfig{
		Interval: cfg.SweepInterval,
		Horizon:  cfg.SweepHorizon,
	}, deps.Logger.Named("sweeper"), deps.Metrics)

	admin := &controllers.AdminController{Worker: worker}
	if dl, ok := deps.Events.(controllers.DeadLetterSource); ok {
		admin.DeadLetters = dl
	}
	if rp, ok := deps.Events.(controllers.DeadLetterReplayer); ok {
		admin.Replayer = rp
	}
	if hook, ok := deps.Events.(interface{ OnDeadLetter(func(events.DeadLetter)) }); ok {
		metrics := deps.Metrics
		hook.OnDeadLetter(func(dl events.DeadLetter) {
			_ = metrics.RecordCount(context.Background(), awspkg.MetricDeadLettered, map[string]string{"EventType": string(dl.Event.Type)})
		})
	}

	return &App{
		Store:   store,
		Worker:  worker,
		Sweeper: sweeper,
		cart:    controllers.NewCartController(store, deps.Logger),
		admin:   admin,
		events:  deps.Events,
		logger:  deps.Logger,
	}, nil
}

// Routes mounts the cart and admin endpoints.
func (a *App) Routes(r gin.IRouter) {
	routes.RegisterCartRoutes(r, a.cart)
	routes.RegisterAdminRoutes(r, a.admin)
}

// Run consumes cascade events and sweeps until ctx is done.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Sweeper.Start(ctx)
	}()

	var err error
	if a.events != nil {
		err = a.Worker.Run(ctx, a.events)
	} else {
		a.logger.Warn("no event subscriber configured; cascade worker idle")
		<-ctx.Done()
	}
	wg.Wait()
	return err
}
