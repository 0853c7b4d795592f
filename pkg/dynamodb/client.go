package dynamodb

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
)

// NewClient loads AWS config and returns a DynamoDB client.
func NewClient(ctx context.Context, s awspkg.Settings) (*dynamodb.Client, error) {
	cfg, err := awspkg.LoadAWSConfig(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// NewClientFromConfig accepts an AWS SDK config and returns a DynamoDB client.
func NewClientFromConfig(cfg sdkaws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg)
}

// EnsureTable creates a pay-per-request table keyed by a single string hash key if it does
// not exist yet. Used against LocalStack; production tables are provisioned elsewhere.
func EnsureTable(ctx context.Context, client *dynamodb.Client, table, hashKey string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   sdkaws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: sdkaws.String(hashKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: sdkaws.String(hashKey), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// EnsureRangeTable is EnsureTable for a table with a string hash key and a numeric range key.
func EnsureRangeTable(ctx context.Context, client *dynamodb.Client, table, hashKey, rangeKey string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   sdkaws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: sdkaws.String(hashKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: sdkaws.String(rangeKey), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: sdkaws.String(hashKey), KeyType: types.KeyTypeHash},
			{AttributeName: sdkaws.String(rangeKey), KeyType: types.KeyTypeRange},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// IsConditionalCheckFailed reports whether err is a failed condition expression, either on a
// single write or as one of the reasons a transaction was cancelled.
func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if sdkaws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}
