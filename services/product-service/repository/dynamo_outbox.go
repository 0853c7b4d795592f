package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/shopswift/commerce-backend/pkg/events"
)

const counterStream = "__counter"

// DynamoOutbox stores pending events in a table keyed by (stream, seq). Published records
// are deleted, so a Query over the stream partition yields exactly the pending ones in order.
type DynamoOutbox struct {
	client DynamoAPI
	table  string
	stream string
}

func NewDynamoOutbox(client DynamoAPI, table, stream string) *DynamoOutbox {
	return &DynamoOutbox{client: client, table: table, stream: stream}
}

type ddbOutboxRecord struct {
	Stream    string `dynamodbav:"stream_id"`
	Seq       int64  `dynamodbav:"seq_no"`
	EventType string `dynamodbav:"event_type"`
	Payload   string `dynamodbav:"payload"`
	CreatedAt string `dynamodbav:"created_at"`
	Attempts  int    `dynamodbav:"attempts"`
	LastError string `dynamodbav:"last_error,omitempty"`
}

func (o *DynamoOutbox) key(stream string, seq int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"stream_id": &types.AttributeValueMemberS{Value: stream},
		"seq_no":    &types.AttributeValueMemberN{Value: strconv.FormatInt(seq, 10)},
	}
}

// nextSeq atomically increments the stream counter.
func (o *DynamoOutbox) nextSeq(ctx context.Context) (int64, error) {
	out, err := o.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &o.table,
		Key:              o.key(counterStream+"#"+o.stream, 0),
		UpdateExpression: aws.String("ADD next_seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("allocate outbox seq: %w", err)
	}
	var counter struct {
		Next int64 `dynamodbav:"next_seq"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("unmarshal outbox seq: %w", err)
	}
	return counter.Next, nil
}

// put allocates a sequence number and returns the write to include in the caller's transaction.
func (o *DynamoOutbox) put(ctx context.Context, e events.Event) (*types.Put, error) {
	seq, err := o.nextSeq(ctx)
	if err != nil {
		return nil, err
	}
	e.Seq = seq
	payload, err := events.Encode(e)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(ddbOutboxRecord{
		Stream:    o.stream,
		Seq:       seq,
		EventType: string(e.Type),
		Payload:   string(payload),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox record: %w", err)
	}
	return &types.Put{TableName: &o.table, Item: item}, nil
}

func (o *DynamoOutbox) Pending(ctx context.Context, limit int) ([]events.OutboxRecord, error) {
	in := &dynamodb.QueryInput{
		TableName:              &o.table,
		KeyConditionExpression: aws.String("stream_id = :stream"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":stream": &types.AttributeValueMemberS{Value: o.stream},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	out, err := o.client.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}

	recs := make([]events.OutboxRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var r ddbOutboxRecord
		if err := attributevalue.UnmarshalMap(item, &r); err != nil {
			return nil, fmt.Errorf("unmarshal outbox record: %w", err)
		}
		e, err := events.Decode([]byte(r.Payload))
		if err != nil {
			return nil, fmt.Errorf("outbox record %d: %w", r.Seq, err)
		}
		e.Seq = r.Seq
		createdAt, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
		recs = append(recs, events.OutboxRecord{
			Seq:       r.Seq,
			Event:     e,
			CreatedAt: createdAt,
			Attempts:  r.Attempts,
			LastError: r.LastError,
		})
	}
	return recs, nil
}

func (o *DynamoOutbox) MarkPublished(ctx context.Context, seq int64) error {
	_, err := o.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &o.table, Key: o.key(o.stream, seq)})
	if err != nil {
		return fmt.Errorf("delete outbox record %d: %w", seq, err)
	}
	return nil
}

func (o *DynamoOutbox) MarkFailed(ctx context.Context, seq int64, reason string) error {
	_, err := o.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &o.table,
		Key:              o.key(o.stream, seq),
		UpdateExpression: aws.String("ADD attempts :one SET last_error = :reason"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":reason": &types.AttributeValueMemberS{Value: reason},
		},
		ConditionExpression: aws.String("attribute_exists(seq_no)"),
	})
	if err != nil {
		return fmt.Errorf("mark outbox record %d failed: %w", seq, err)
	}
	return nil
}
