package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/common/server"
	"github.com/shopswift/commerce-backend/services/user-service/app"
	"github.com/shopswift/commerce-backend/services/user-service/config"
	"github.com/shopswift/commerce-backend/services/user-service/database"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, metrics := server.Observability(ctx, cfg.AppEnv, "user-service", cfg.CloudWatchEnabled, cfg.MetricsNamespace, cfg.LogGroup, cfg.AWS)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	var db *gorm.DB
	if cfg.UserStore == "postgres" {
		var err error
		db, err = database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Database connection failed", zap.Error(err))
		}
		defer database.Close(db)
	}

	bus, closeBus, err := events.NewBus(ctx, cfg.Bus, logger.Named("bus"))
	if err != nil {
		logger.Fatal("Event bus init failed", zap.Error(err))
	}
	defer closeBus()

	svc, err := app.New(cfg, app.Deps{Logger: logger, Metrics: metrics, Publisher: bus, DB: db})
	if err != nil {
		logger.Fatal("User service init failed", zap.Error(err))
	}
	go svc.Run(ctx)

	router := server.NewRouter(logger, metrics, server.Options{
		ServiceName:  "user-service",
		RateLimitRPM: cfg.RateLimitRPM,
		CORSOrigins:  cfg.CORSOrigins,
	})
	svc.Routes(router)

	logger.Info("User Service starting", zap.String("port", cfg.Port), zap.String("store", cfg.UserStore), zap.String("bus", cfg.Bus.Driver))
	if err := server.Run(ctx, ":"+cfg.Port, router, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
