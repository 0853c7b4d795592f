package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
)

type queueConsumer interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// SNSSQSBus publishes to an SNS topic and consumes the SQS queue subscribed to it. Messages
// are deleted only after the handler succeeds; otherwise SQS redelivers them after the
// visibility timeout and the queue's redrive policy dead-letters them.
//
// On a FIFO topic the message group is the event key and the deduplication id is the token,
// which gives per-key ordering and collapses republished copies of one logical event.
type SNSSQSBus struct {
	publisher awspkg.SNSPublisher
	consumer  queueConsumer
	topicArn  string
	fifo      bool
	logger    *zap.Logger
}

func NewSNSSQSBus(publisher awspkg.SNSPublisher, consumer queueConsumer, topicArn string, logger *zap.Logger) *SNSSQSBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SNSSQSBus{
		publisher: publisher,
		consumer:  consumer,
		topicArn:  topicArn,
		fifo:      strings.HasSuffix(topicArn, ".fifo"),
		logger:    logger,
	}
}

func (b *SNSSQSBus) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	body, err := Encode(e)
	if err != nil {
		return err
	}

	in := awspkg.PublishInput{
		TopicArn:   b.topicArn,
		Message:    body,
		Attributes: map[string]string{"event_type": string(e.Type)},
	}
	if b.fifo {
		in.GroupID = e.Key
		in.DeduplicationID = e.Token
	}
	if err := b.publisher.Publish(ctx, in); err != nil {
		return fmt.Errorf("publish %s %s: %w", e.Type, e.Key, err)
	}
	return nil
}

// Subscribe polls the queue until ctx is done.
func (b *SNSSQSBus) Subscribe(ctx context.Context, h Handler) error {
	if b.consumer == nil {
		return errors.New("sns/sqs bus has no queue consumer")
	}

	err := b.consumer.StartPolling(ctx, func(ctx context.Context, msg awspkg.Message) error {
		e, err := Decode([]byte(msg.Body))
		if err != nil {
			// left for the redrive policy so operators can inspect it
			b.logger.Error("malformed event on queue", zap.String("message_id", msg.ID), zap.Error(err))
			return err
		}
		if err := h(ctx, e); err != nil {
			return fmt.Errorf("handle %s %s (receive %d): %w", e.Type, e.Key, msg.ReceiveCount, err)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
