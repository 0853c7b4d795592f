package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBusConfig configures the Kafka bus. The dead-letter topic is Topic + ".dlq".
type KafkaBusConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Retry   RetryPolicy
}

// KafkaBus keys every message by the event key so the hash balancer keeps one key on one
// partition. Offsets are committed only after the handler succeeded or the message was
// dead-lettered.
type KafkaBus struct {
	writer kafkaWriter
	dlq    kafkaWriter
	reader kafkaReader
	retry  RetryPolicy
	logger *zap.Logger
}

func NewKafkaBus(cfg KafkaBusConfig, logger *zap.Logger) *KafkaBus {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	dlq := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic + ".dlq",
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	var reader kafkaReader
	if cfg.GroupID != "" {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 1e6, // 1MB
		})
	}
	return newKafkaBus(writer, dlq, reader, cfg.Retry, logger)
}

func newKafkaBus(writer, dlq kafkaWriter, reader kafkaReader, retry RetryPolicy, logger *zap.Logger) *KafkaBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaBus{writer: writer, dlq: dlq, reader: reader, retry: retry.withDefaults(), logger: logger}
}

func toMessage(e Event) (kafka.Message, error) {
	data, err := Encode(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "token", Value: []byte(e.Token)},
		},
	}, nil
}

func (b *KafkaBus) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to send Kafka message %s %s: %w", e.Type, e.Key, err)
	}
	return nil
}

// Subscribe consumes the topic in the configured group until ctx is done.
func (b *KafkaBus) Subscribe(ctx context.Context, h Handler) error {
	if b.reader == nil {
		return errors.New("kafka bus has no consumer group configured")
	}
	b.logger.Info("Kafka consumer started")

	for {
		m, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := b.process(ctx, m, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (b *KafkaBus) process(ctx context.Context, m kafka.Message, h Handler) error {
	e, err := Decode(m.Value)
	if err != nil {
		return b.deadLetter(ctx, m, err, 0)
	}

	for attempt := 1; ; attempt++ {
		err = h(ctx, e)
		if err == nil {
			return b.commit(ctx, m)
		}
		if errors.Is(err, ErrMalformed) || attempt >= b.retry.MaxAttempts {
			return b.deadLetter(ctx, m, err, attempt)
		}

		backoff := b.retry.Backoff(attempt)
		b.logger.Warn("event handling failed, retrying",
			zap.String("event_type", string(e.Type)),
			zap.String("key", e.Key),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
	}
}

// deadLetter copies m to the dlq topic, retrying until it lands, then commits it.
func (b *KafkaBus) deadLetter(ctx context.Context, m kafka.Message, cause error, attempts int) error {
	b.logger.Error("event dead-lettered",
		zap.ByteString("key", m.Key),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)

	dl := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: append(append([]kafka.Header(nil), m.Headers...),
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	}
	for attempt := 1; ; attempt++ {
		err := b.dlq.WriteMessages(ctx, dl)
		if err == nil {
			break
		}
		b.logger.Warn("dead-letter write failed", zap.Int("attempt", attempt), zap.Error(err))
		if err := sleepCtx(ctx, b.retry.Backoff(attempt)); err != nil {
			return err
		}
	}
	return b.commit(ctx, m)
}

func (b *KafkaBus) commit(ctx context.Context, m kafka.Message) error {
	if err := b.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}

func (b *KafkaBus) Close() error {
	var errs []error
	errs = append(errs, b.writer.Close(), b.dlq.Close())
	if b.reader != nil {
		errs = append(errs, b.reader.Close())
	}
	return errors.Join(errs...)
}
