package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/services/user-service/config"
	"github.com/shopswift/commerce-backend/services/user-service/models"
)

const connectAttempts = 10

// ResolveDSN returns the DSN from Secrets Manager when configured, otherwise from POSTGRES_*.
func ResolveDSN(ctx context.Context, cfg config.Config) (string, error) {
	if !cfg.UseSecrets || cfg.DSNSecretName == "" {
		return cfg.DSN(), nil
	}
	awsCfg, err := awspkg.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return "", err
	}
	dsn, err := awspkg.NewSecretsClient(awsCfg).GetPostgresDSN(ctx, cfg.DSNSecretName, cfg.PostgresSSLMode)
	if err != nil {
		return "", fmt.Errorf("read postgres dsn secret: %w", err)
	}
	return dsn, nil
}

// Connect opens Postgres with retries and migrates the users and outbox tables outside
// production.
func Connect(ctx context.Context, cfg config.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn, err := ResolveDSN(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			break
		}
		logger.Warn("Postgres connection failed", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
	}
	logger.Info("Connected to PostgreSQL")

	if cfg.AppEnv != "production" {
		if err := models.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
