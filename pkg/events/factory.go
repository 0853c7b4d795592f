package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
)

// BusConfig selects and configures a bus implementation.
type BusConfig struct {
	// Driver is sns or kafka. The memory bus is built directly by the all-in-one binary.
	Driver       string
	SNSTopicArn  string
	SQSQueueURL  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	AWS          awspkg.Settings
	Retry        RetryPolicy
}

// NewBus builds the configured bus and a func releasing its connections.
func NewBus(ctx context.Context, cfg BusConfig, logger *zap.Logger) (Bus, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "":
		return nil, nil, errors.New("BUS_DRIVER is required (sns or kafka)")

	case "memory":
		// a standalone publisher would fill partitions nobody drains
		return nil, nil, errors.New("the in-process bus only runs inside the all-in-one binary; set BUS_DRIVER to sns or kafka")

	case "sns":
		if cfg.SNSTopicArn == "" {
			return nil, nil, fmt.Errorf("sns bus requires SNS_TOPIC_ARN")
		}
		awsCfg, err := awspkg.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		var consumer queueConsumer
		if cfg.SQSQueueURL != "" {
			consumer = awspkg.NewSQSConsumer(awsCfg, cfg.SQSQueueURL, logger)
		}
		return NewSNSSQSBus(awspkg.NewSNSClient(awsCfg), consumer, cfg.SNSTopicArn, logger), noop, nil

	case "kafka":
		if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
			return nil, nil, fmt.Errorf("kafka bus requires KAFKA_BROKERS and KAFKA_TOPIC")
		}
		bus := NewKafkaBus(KafkaBusConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
			Retry:   cfg.Retry,
		}, logger)
		return bus, bus.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown BUS_DRIVER %q", cfg.Driver)
	}
}
