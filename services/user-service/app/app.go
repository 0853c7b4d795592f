// Package app wires the user service: repository, outbox relay and HTTP handlers.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/user-service/config"
	"github.com/shopswift/commerce-backend/services/user-service/controllers"
	"github.com/shopswift/commerce-backend/services/user-service/repository"
	"github.com/shopswift/commerce-backend/services/user-service/routes"
)

// Deps are the external resources the service runs on. DB is required when cfg.UserStore
// is "postgres".
type Deps struct {
	Logger    *zap.Logger
	Metrics   awspkg.Recorder
	Publisher events.Publisher
	DB        *gorm.DB
}

type App struct {
	Repo  repository.UserRepository
	Relay *events.Relay

	users *controllers.UserController
}

func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = awspkg.NopRecorder{}
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("user service needs an event publisher")
	}

	var (
		repo   repository.UserRepository
		outbox events.Outbox
	)
	switch cfg.UserStore {
	case "postgres":
		if deps.DB == nil {
			return nil, fmt.Errorf("USER_STORE=postgres needs a database")
		}
		repo = repository.NewGormUserRepository(deps.DB)
		outbox = repository.NewGormOutbox(deps.DB)
	case "", "memory":
		mem := events.NewMemoryOutbox()
		repo = repository.NewMemoryUserRepository(mem)
		outbox = mem
	default:
		return nil, fmt.Errorf("unknown USER_STORE %q", cfg.UserStore)
	}

	relay := events.NewRelay(outbox, deps.Publisher, events.RelayConfig{
		Name:      "user-outbox",
		Interval:  cfg.RelayInterval,
		BatchSize: cfg.RelayBatch,
		Metrics:   deps.Metrics,
	}, deps.Logger.Named("relay"))

	return &App{
		Repo:  repo,
		Relay: relay,
		users: controllers.NewUserController(repo, deps.Logger, deps.Metrics),
	}, nil
}

func (a *App) Routes(r gin.IRouter) {
	routes.RegisterUserRoutes(r, a.users)
	r.GET("/admin/outbox/user", a.outboxStatus)
}

// outboxStatus reports whether the relay breaker is letting publishes through.
func (a *App) outboxStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"relay": "user-outbox", "breaker": a.Relay.BreakerState().String()})
}

// Run relays outbox events until ctx is done.
func (a *App) Run(ctx context.Context) {
	a.Relay.Start(ctx)
}
