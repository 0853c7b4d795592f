package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// PublishInput is one SNS message. GroupID and DeduplicationID are only sent when set
// (FIFO topics require both).
type PublishInput struct {
	TopicArn        string
	Message         []byte
	GroupID         string
	DeduplicationID string
	Attributes      map[string]string
}

// SNSPublisher is a minimal interface for publishing messages to SNS.
type SNSPublisher interface {
	Publish(ctx context.Context, in PublishInput) error
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSClient struct {
	client snsAPI
}

func NewSNSClient(cfg sdkaws.Config) *SNSClient {
	return &SNSClient{client: sns.NewFromConfig(cfg)}
}

// Publish publishes a raw message to the given SNS topic ARN.
func (s *SNSClient) Publish(ctx context.Context, in PublishInput) error {
	if in.TopicArn == "" {
		return fmt.Errorf("empty topicArn")
	}

	input := &sns.PublishInput{
		TopicArn: sdkaws.String(in.TopicArn),
		Message:  sdkaws.String(string(in.Message)),
	}
	if in.GroupID != "" {
		input.MessageGroupId = sdkaws.String(in.GroupID)
	}
	if in.DeduplicationID != "" {
		input.MessageDeduplicationId = sdkaws.String(in.DeduplicationID)
	}
	if len(in.Attributes) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(in.Attributes))
		for k, v := range in.Attributes {
			input.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(v),
			}
		}
	}

	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", in.TopicArn, err)
	}
	return nil
}
