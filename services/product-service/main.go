package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/common/server"
	"github.com/shopswift/commerce-backend/services/product-service/app"
	"github.com/shopswift/commerce-backend/services/product-service/config"
	"github.com/shopswift/commerce-backend/services/product-service/database"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, metrics := server.Observability(ctx, cfg.AppEnv, "product-service", cfg.CloudWatchEnabled, cfg.MetricsNamespace, cfg.LogGroup, cfg.AWS)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	deps := app.Deps{Logger: logger, Metrics: metrics}

	if cfg.ProductStore == "dynamodb" {
		client, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("DynamoDB init failed", zap.Error(err))
		}
		deps.Dynamo = client
	}

	if cfg.CacheEnabled {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, product cache disabled", zap.Error(err))
			_ = client.Close()
		} else {
			deps.Redis = client
			defer client.Close()
		}
	}

	bus, closeBus, err := events.NewBus(ctx, cfg.Bus, logger.Named("bus"))
	if err != nil {
		logger.Fatal("Event bus init failed", zap.Error(err))
	}
	defer closeBus()
	deps.Publisher = bus

	svc, err := app.New(cfg, deps)
	if err != nil {
		logger.Fatal("Product service init failed", zap.Error(err))
	}
	go svc.Run(ctx)

	router := server.NewRouter(logger, metrics, server.Options{
		ServiceName:  "product-service",
		RateLimitRPM: cfg.RateLimitRPM,
		CORSOrigins:  cfg.CORSOrigins,
	})
	svc.Routes(router)

	logger.Info("Product Service starting", zap.String("port", cfg.Port), zap.String("store", cfg.ProductStore), zap.String("bus", cfg.Bus.Driver))
	if err := server.Run(ctx, ":"+cfg.Port, router, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
