package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo implements the handful of DynamoDB calls the adapters make against in-memory
// tables. Only the expressions the adapters actually issue are understood.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue

	transactCalls []*dynamodb.TransactWriteItemsInput
	// beforeTransact runs before each TransactWriteItems is applied.
	beforeTransact func()
	// unprocessedOnce makes the first BatchGetItem call defer its first key.
	unprocessedOnce bool
	batchGetCalls   int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string]map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	if v, ok := item["product_id"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	stream, _ := item["stream_id"].(*types.AttributeValueMemberS)
	seq, _ := item["seq_no"].(*types.AttributeValueMemberN)
	if stream == nil || seq == nil {
		return ""
	}
	return stream.Value + "/" + seq.Value
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.table(*in.TableName)[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(*in.TableName)
	k := itemKey(in.Item)
	if aws.ToString(in.ConditionExpression) == "attribute_not_exists(product_id)" {
		if _, exists := t[k]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	}
	t[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(*in.TableName)
	k := itemKey(in.Key)
	item, exists := t[k]

	switch expr := aws.ToString(in.UpdateExpression); expr {
	case "ADD next_seq :one":
		next := int64(1)
		if exists {
			cur, _ := strconv.ParseInt(item["next_seq"].(*types.AttributeValueMemberN).Value, 10, 64)
			next = cur + 1
		} else {
			item = copyItem(in.Key)
		}
		item["next_seq"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(next, 10)}
		t[k] = item
		return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"next_seq": item["next_seq"]}}, nil

	case "ADD attempts :one SET last_error = :reason":
		if !exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
		}
		attempts := int64(0)
		if n, ok := item["attempts"].(*types.AttributeValueMemberN); ok {
			attempts, _ = strconv.ParseInt(n.Value, 10, 64)
		}
		item["attempts"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(attempts+1, 10)}
		item["last_error"] = in.ExpressionAttributeValues[":reason"]
		return &dynamodb.UpdateItemOutput{}, nil

	default:
		// SET #a = :a, ... as issued by DynamoAdapter.Update.
		if !exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
		}
		updated := copyItem(item)
		for placeholder, attr := range in.ExpressionAttributeNames {
			if v, ok := in.ExpressionAttributeValues[":"+placeholder[1:]]; ok {
				updated[attr] = v
			}
		}
		t[k] = updated
		return &dynamodb.UpdateItemOutput{Attributes: updated}, nil
	}
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.table(*in.TableName), itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchGetCalls++

	out := &dynamodb.BatchGetItemOutput{
		Responses:       make(map[string][]map[string]types.AttributeValue),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}
	for name, ka := range in.RequestItems {
		keys := ka.Keys
		if f.unprocessedOnce && len(keys) > 1 {
			f.unprocessedOnce = false
			out.UnprocessedKeys[name] = types.KeysAndAttributes{Keys: keys[:1]}
			keys = keys[1:]
		}
		for _, key := range keys {
			if item, ok := f.table(name)[itemKey(key)]; ok {
				out.Responses[name] = append(out.Responses[name], item)
			}
		}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.beforeTransact != nil {
		f.beforeTransact()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls = append(f.transactCalls, in)

	for _, op := range in.TransactItems {
		if op.Delete == nil || aws.ToString(op.Delete.ConditionExpression) != "updated_at = :updated_at" {
			continue
		}
		item, ok := f.table(*op.Delete.TableName)[itemKey(op.Delete.Key)]
		want := op.Delete.ExpressionAttributeValues[":updated_at"].(*types.AttributeValueMemberS).Value
		if !ok || item["updated_at"].(*types.AttributeValueMemberS).Value != want {
			return nil, &types.TransactionCanceledException{
				Message:             aws.String("cancelled"),
				CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}, {Code: aws.String("None")}},
			}
		}
	}
	for _, op := range in.TransactItems {
		switch {
		case op.Delete != nil:
			delete(f.table(*op.Delete.TableName), itemKey(op.Delete.Key))
		case op.Put != nil:
			f.table(*op.Put.TableName)[itemKey(op.Put.Item)] = op.Put.Item
		default:
			return nil, fmt.Errorf("unsupported transact item")
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stream := in.ExpressionAttributeValues[":stream"].(*types.AttributeValueMemberS).Value

	type row struct {
		seq  int64
		item map[string]types.AttributeValue
	}
	var rows []row
	for _, item := range f.table(*in.TableName) {
		s, ok := item["stream_id"].(*types.AttributeValueMemberS)
		if !ok || s.Value != stream {
			continue
		}
		seq, _ := strconv.ParseInt(item["seq_no"].(*types.AttributeValueMemberN).Value, 10, 64)
		rows = append(rows, row{seq: seq, item: item})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	if in.Limit != nil && int(*in.Limit) < len(rows) {
		rows = rows[:*in.Limit]
	}
	out := &dynamodb.QueryOutput{}
	for _, r := range rows {
		out.Items = append(out.Items, r.item)
	}
	return out, nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
