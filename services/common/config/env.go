// Package config holds the environment helpers every service's config.Load uses.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/pkg/events"
)

// LoadDotEnv reads .env when present. A missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func GetEnvInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func GetEnvBool(key string, defaultVal bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

// GetEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func GetEnvDuration(key string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

// GetEnvList splits a comma separated value, dropping blanks.
func GetEnvList(key, defaultVal string) []string {
	var out []string
	for _, part := range strings.Split(GetEnv(key, defaultVal), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// AWSFromEnv reads AWS_REGION, AWS_ENDPOINT and the optional static credentials.
func AWSFromEnv() awspkg.Settings {
	return awspkg.Settings{
		Region:          GetEnv("AWS_REGION", "us-east-1"),
		Endpoint:        os.Getenv("AWS_ENDPOINT"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
}

// BusFromEnv reads the event bus selection shared by every service.
func BusFromEnv(groupID string) events.BusConfig {
	return events.BusConfig{
		Driver:       os.Getenv("BUS_DRIVER"),
		SNSTopicArn:  os.Getenv("SNS_TOPIC_ARN"),
		SQSQueueURL:  os.Getenv("SQS_QUEUE_URL"),
		KafkaBrokers: GetEnvList("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:   GetEnv("KAFKA_TOPIC", "cart.cascade"),
		KafkaGroupID: GetEnv("KAFKA_GROUP_ID", groupID),
		AWS:          AWSFromEnv(),
		Retry: events.RetryPolicy{
			MaxAttempts: GetEnvInt("BUS_MAX_ATTEMPTS", 5),
			BaseBackoff: GetEnvDuration("BUS_BASE_BACKOFF", 100*time.Millisecond),
			MaxBackoff:  GetEnvDuration("BUS_MAX_BACKOFF", 5*time.Second),
		},
	}
}
