package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Message is one received SQS message.
type Message struct {
	ID           string
	Body         string
	ReceiveCount int
}

// MessageHandler processes one message. Returning nil deletes it; an error leaves it on the
// queue to be redelivered after the visibility timeout.
type MessageHandler func(ctx context.Context, msg Message) error

// SQSConsumer provides methods for consuming messages from SQS queues
type SQSConsumer struct {
	client            sqsAPI
	queueURL          string
	logger            *zap.Logger
	waitSeconds       int32
	visibilityTimeout int32
	maxBackoff        time.Duration
}

// NewSQSConsumer creates a new SQS consumer for the given queue URL
func NewSQSConsumer(cfg sdkaws.Config, queueURL string, logger *zap.Logger) *SQSConsumer {
	return newSQSConsumer(sqs.NewFromConfig(cfg), queueURL, logger)
}

func newSQSConsumer(client sqsAPI, queueURL string, logger *zap.Logger) *SQSConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQSConsumer{
		client:            client,
		queueURL:          queueURL,
		logger:            logger,
		waitSeconds:       20,
		visibilityTimeout: 30,
		maxBackoff:        30 * time.Second,
	}
}

// StartPolling polls SQS for messages and processes them with the handler
// Runs until ctx is cancelled. Receive errors back off exponentially.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting SQS polling", zap.String("queue", c.queueURL))

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			c.logger.Info("SQS polling stopped", zap.String("queue", c.queueURL))
			return ctx.Err()
		}

		if err := c.pollOnce(ctx, handler); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("Error polling SQS", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

func (c *SQSConsumer) pollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    sdkaws.String(c.queueURL),
		MaxNumberOfMessages:         10,
		WaitTimeSeconds:             c.waitSeconds,
		VisibilityTimeout:           c.visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}

		m := Message{Body: *msg.Body, ReceiveCount: 1}
		if msg.MessageId != nil {
			m.ID = *msg.MessageId
		}
		if n, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
			m.ReceiveCount = n
		}

		if err := handler(ctx, m); err != nil {
			c.logger.Warn("Failed to process message, leaving for redelivery",
				zap.String("message_id", m.ID), zap.Int("receive_count", m.ReceiveCount), zap.Error(err))
			continue
		}

		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      sdkaws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			c.logger.Error("Failed to delete message", zap.String("message_id", m.ID), zap.Error(err))
		}
	}

	return nil
}
