package config

import (
	"fmt"
	"time"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/pkg/events"
	common "github.com/shopswift/commerce-backend/services/common/config"
)

type Config struct {
	Port   string
	AppEnv string
	// ProductStore is memory or dynamodb.
	ProductStore string
	DDBTable     string
	OutboxTable  string
	// EnsureTables creates the tables on startup, for LocalStack.
	EnsureTables bool

	CacheEnabled bool
	CacheTTL     time.Duration
	RedisURL     string

	Bus           events.BusConfig
	AWS           awspkg.Settings
	RelayInterval time.Duration
	RelayBatch    int

	CloudWatchEnabled bool
	MetricsNamespace  string
	LogGroup          string
	RateLimitRPM      int
	CORSOrigins       string
}

func Load() Config {
	common.LoadDotEnv()

	return Config{
		Port:         common.GetEnv("PORT", "8082"),
		AppEnv:       common.GetEnv("APP_ENV", "development"),
		ProductStore: common.GetEnv("PRODUCT_STORE", "memory"),
		DDBTable:     common.GetEnv("DDB_TABLE_PRODUCTS", "Products"),
		OutboxTable:  common.GetEnv("DDB_TABLE_OUTBOX", "ProductOutbox"),
		EnsureTables: common.GetEnvBool("DDB_ENSURE_TABLES", false),

		CacheEnabled: common.GetEnvBool("PRODUCT_CACHE_ENABLED", false),
		CacheTTL:     common.GetEnvDuration("PRODUCT_CACHE_TTL", 10*time.Minute),
		RedisURL:     common.GetEnv("REDIS_URL", "redis://localhost:6379"),

		Bus:           common.BusFromEnv("product-service"),
		AWS:           common.AWSFromEnv(),
		RelayInterval: common.GetEnvDuration("OUTBOX_RELAY_INTERVAL", 500*time.Millisecond),
		RelayBatch:    common.GetEnvInt("OUTBOX_RELAY_BATCH", 50),

		CloudWatchEnabled: common.GetEnvBool("CLOUDWATCH_ENABLED", false),
		MetricsNamespace:  common.GetEnv("CLOUDWATCH_NAMESPACE", "ShopSwift"),
		LogGroup:          common.GetEnv("CLOUDWATCH_LOG_GROUP", "/shopswift/services"),
		RateLimitRPM:      common.GetEnvInt("RATE_LIMIT_RPM", 600),
		CORSOrigins:       common.GetEnv("CORS_ALLOWED_ORIGINS", "*"),
	}
}

func (c Config) Validate() error {
	switch c.ProductStore {
	case "memory":
	case "dynamodb":
		if c.DDBTable == "" || c.OutboxTable == "" {
			return fmt.Errorf("DDB_TABLE_PRODUCTS and DDB_TABLE_OUTBOX are required")
		}
	default:
		return fmt.Errorf("unknown PRODUCT_STORE %q", c.ProductStore)
	}
	return nil
}
