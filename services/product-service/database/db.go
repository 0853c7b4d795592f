package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	ddbpkg "github.com/shopswift/commerce-backend/pkg/dynamodb"
	"github.com/shopswift/commerce-backend/services/product-service/config"
)

// Connect returns a DynamoDB client and, when configured, creates the product and outbox tables.
func Connect(ctx context.Context, cfg config.Config, logger *zap.Logger) (*dynamodb.Client, error) {
	client, err := ddbpkg.NewClient(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	if !cfg.EnsureTables {
		return client, nil
	}

	if err := ddbpkg.EnsureTable(ctx, client, cfg.DDBTable, "product_id"); err != nil {
		return nil, fmt.Errorf("ensure products table: %w", err)
	}
	if err := ddbpkg.EnsureRangeTable(ctx, client, cfg.OutboxTable, "stream_id", "seq_no"); err != nil {
		return nil, fmt.Errorf("ensure outbox table: %w", err)
	}
	logger.Info("DynamoDB tables ready", zap.String("products", cfg.DDBTable), zap.String("outbox", cfg.OutboxTable))
	return client, nil
}
