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
	// UserStore is memory or postgres.
	UserStore string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string
	// DSNSecretName, when set with AWS_USE_SECRETS=true, names a Secrets Manager secret
	// holding either a DSN or RDS JSON credentials.
	DSNSecretName string
	UseSecrets    bool

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
		Port:      common.GetEnv("PORT", "8085"),
		AppEnv:    common.GetEnv("APP_ENV", "development"),
		UserStore: common.GetEnv("USER_STORE", "memory"),

		PostgresUser:     common.GetEnv("POSTGRES_USER", ""),
		PostgresPassword: common.GetEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       common.GetEnv("POSTGRES_DB", ""),
		PostgresHost:     common.GetEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     common.GetEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  common.GetEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: common.GetEnv("POSTGRES_TIMEZONE", "UTC"),
		DSNSecretName:    common.GetEnv("POSTGRES_DSN_SECRET", ""),
		UseSecrets:       common.GetEnvBool("AWS_USE_SECRETS", false),

		Bus:           common.BusFromEnv("user-service"),
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

// Validate checks the settings the selected store needs.
func (c Config) Validate() error {
	switch c.UserStore {
	case "memory":
		return nil
	case "postgres":
		if c.UseSecrets && c.DSNSecretName != "" {
			return nil
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
		if c.PostgresPassword == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown USER_STORE %q", c.UserStore)
	}
}

// DSN builds the libpq connection string from the POSTGRES_* settings.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}
