package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/cart-service/app"
	"github.com/shopswift/commerce-backend/services/cart-service/config"
	"github.com/shopswift/commerce-backend/services/cart-service/database"
	"github.com/shopswift/commerce-backend/services/common/server"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, metrics := server.Observability(ctx, cfg.AppEnv, "cart-service", cfg.CloudWatchEnabled, cfg.MetricsNamespace, cfg.LogGroup, cfg.AWS)
	defer logger.Sync()

	var redisClient *redis.Client
	if cfg.CartStore == "redis" {
		var err error
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("Redis init failed", zap.Error(err))
		}
		defer redisClient.Close()
	}

	bus, closeBus, err := events.NewBus(ctx, cfg.Bus, logger.Named("bus"))
	if err != nil {
		logger.Fatal("Event bus init failed", zap.Error(err))
	}
	defer func() {
		if err := closeBus(); err != nil {
			logger.Warn("Event bus close failed", zap.Error(err))
		}
	}()

	svc, err := app.New(cfg, app.Deps{Logger: logger, Metrics: metrics, Events: bus, Redis: redisClient})
	if err != nil {
		logger.Fatal("Cart service init failed", zap.Error(err))
	}

	go func() {
		if err := svc.Run(ctx); err != nil {
			logger.Error("Cascade worker stopped with error", zap.Error(err))
			stop()
		}
	}()

	router := server.NewRouter(logger, metrics, server.Options{
		ServiceName:  "cart-service",
		RateLimitRPM: cfg.RateLimitRPM,
		CORSOrigins:  cfg.CORSOrigins,
	})
	svc.Routes(router)

	logger.Info("Cart Service starting", zap.String("port", cfg.Port), zap.String("store", cfg.CartStore), zap.String("bus", cfg.Bus.Driver))
	if err := server.Run(ctx, ":"+cfg.Port, router, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
