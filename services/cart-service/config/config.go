package config

import (
	"time"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/pkg/events"
	common "github.com/shopswift/commerce-backend/services/common/config"
)

type Config struct {
	Port     string
	AppEnv   string
	RedisURL string
	// CartStore is memory or redis.
	CartStore string
	CartTTL   time.Duration
	Bus       events.BusConfig
	AWS       awspkg.Settings

	CascadeConcurrency int
	SweepInterval      time.Duration
	SweepHorizon       time.Duration
	TombstoneTTL       time.Duration
	LedgerEnabled      bool
	LedgerTTL          time.Duration

	CloudWatchEnabled bool
	MetricsNamespace  string
	LogGroup          string
	RateLimitRPM      int
	CORSOrigins       string
}

func Load() Config {
	common.LoadDotEnv()

	return Config{
		Port:      common.GetEnv("PORT", "8086"),
		AppEnv:    common.GetEnv("APP_ENV", "development"),
		RedisURL:  common.GetEnv("REDIS_URL", "redis://localhost:6379"),
		CartStore: common.GetEnv("CART_STORE", "memory"),
		CartTTL:   common.GetEnvDuration("CART_TTL", 7*24*time.Hour),
		Bus:       common.BusFromEnv("cart-cascade"),
		AWS:       common.AWSFromEnv(),

		CascadeConcurrency: common.GetEnvInt("CASCADE_CONCURRENCY", 16),
		SweepInterval:      common.GetEnvDuration("CASCADE_SWEEP_INTERVAL", 30*time.Second),
		SweepHorizon:       common.GetEnvDuration("CASCADE_SWEEP_HORIZON", 10*time.Minute),
		TombstoneTTL:       common.GetEnvDuration("CASCADE_TOMBSTONE_TTL", 7*24*time.Hour),
		LedgerEnabled:      common.GetEnvBool("CASCADE_LEDGER_ENABLED", true),
		LedgerTTL:          common.GetEnvDuration("CASCADE_LEDGER_TTL", 24*time.Hour),

		CloudWatchEnabled: common.GetEnvBool("CLOUDWATCH_ENABLED", false),
		MetricsNamespace:  common.GetEnv("CLOUDWATCH_NAMESPACE", "ShopSwift"),
		LogGroup:          common.GetEnv("CLOUDWATCH_LOG_GROUP", "/shopswift/services"),
		RateLimitRPM:      common.GetEnvInt("RATE_LIMIT_RPM", 600),
		CORSOrigins:       common.GetEnv("CORS_ALLOWED_ORIGINS", "*"),
	}
}
