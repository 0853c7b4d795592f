// Command all-in-one runs the user, product and cart services in one process on memory
// backends, connected by the in-process event bus.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shopswift/commerce-backend/pkg/events"
	cartconfig "github.com/shopswift/commerce-backend/services/cart-service/config"
	common "github.com/shopswift/commerce-backend/services/common/config"
	"github.com/shopswift/commerce-backend/services/common/server"
	productconfig "github.com/shopswift/commerce-backend/services/product-service/config"
	userconfig "github.com/shopswift/commerce-backend/services/user-service/config"
)

func main() {
	cfg := stackConfig{
		User:    userconfig.Load(),
		Product: productconfig.Load(),
		Cart:    cartconfig.Load(),
		Bus:     events.MemoryBusConfig{Partitions: common.GetEnvInt("BUS_PARTITIONS", 8)},
	}
	port := common.GetEnv("PORT", "8080")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, metrics := server.Observability(ctx, cfg.Cart.AppEnv, "all-in-one", cfg.Cart.CloudWatchEnabled, cfg.Cart.MetricsNamespace, cfg.Cart.LogGroup, cfg.Cart.AWS)
	defer logger.Sync()

	s, err := newStack(cfg, logger, metrics)
	if err != nil {
		logger.Fatal("Stack init failed", zap.Error(err))
	}
	go func() {
		if err := s.Run(ctx); err != nil {
			logger.Error("Background workers stopped", zap.Error(err))
			stop()
		}
	}()

	router := server.NewRouter(logger, metrics, server.Options{
		ServiceName:    "all-in-one",
		RateLimitRPM:   cfg.Cart.RateLimitRPM,
		CORSOrigins:    cfg.Cart.CORSOrigins,
		RequestTimeout: 30 * time.Second,
	})
	s.Routes(router)

	logger.Info("All-in-one stack starting", zap.String("port", port))
	if err := server.Run(ctx, ":"+port, router, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
