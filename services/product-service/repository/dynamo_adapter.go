package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	ddbpkg "github.com/shopswift/commerce-backend/pkg/dynamodb"
	"github.com/shopswift/commerce-backend/pkg/events"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/product-service/models"
)

// DynamoAPI is the subset of the DynamoDB client the adapters use.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// batchGetLimit is the BatchGetItem key limit.
const batchGetLimit = 100

// DynamoAdapter stores products in a table keyed by product_id. Deletions are written
// together with their outbox record in one TransactWriteItems call.
type DynamoAdapter struct {
	client DynamoAPI
	table  string
	outbox *DynamoOutbox
}

func NewDynamoAdapter(client DynamoAPI, table string, outbox *DynamoOutbox) *DynamoAdapter {
	return &DynamoAdapter{client: client, table: table, outbox: outbox}
}

type ddbProduct struct {
	ProductID   string `dynamodbav:"product_id"`
	ProductName string `dynamodbav:"product_name"`
	Description string `dynamodbav:"description"`
	PriceCents  int64  `dynamodbav:"price_cents"`
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

func toDDB(p *models.Product) ddbProduct {
	return ddbProduct{
		ProductID:   p.ID,
		ProductName: p.ProductName,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func fromItem(item map[string]types.AttributeValue) (*models.Product, error) {
	var dp ddbProduct
	if err := attributevalue.UnmarshalMap(item, &dp); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	p := &models.Product{
		ID:          dp.ProductID,
		ProductName: dp.ProductName,
		Description: dp.Description,
		PriceCents:  dp.PriceCents,
	}
	if t, err := time.Parse(time.RFC3339Nano, dp.CreatedAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, dp.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

func (d *DynamoAdapter) key(id string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"product_id": id})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

func (d *DynamoAdapter) Create(ctx context.Context, product *models.Product) error {
	product.CreatedAt = time.Now().UTC()
	product.UpdatedAt = product.CreatedAt

	item, err := attributevalue.MarshalMap(toDDB(product))
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &d.table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(product_id)"),
	})
	if ddbpkg.IsConditionalCheckFailed(err) {
		return apperrors.Conflict("product %s already exists", product.ID)
	}
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (d *DynamoAdapter) FindByID(ctx context.Context, id string) (*models.Product, error) {
	key, err := d.key(id)
	if err != nil {
		return nil, err
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: &d.table, Key: key, ConsistentRead: aws.Bool(true)})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, apperrors.NotFound("product %s not found", id)
	}
	return fromItem(out.Item)
}

func (d *DynamoAdapter) FindByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	found := make(map[string]models.Product, len(ids))
	for start := 0; start < len(ids); start += batchGetLimit {
		end := min(start+batchGetLimit, len(ids))
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			key, err := d.key(id)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}

		req := map[string]types.KeysAndAttributes{d.table: {Keys: keys, ConsistentRead: aws.Bool(true)}}
		for attempt := 0; len(req) > 0; attempt++ {
			if attempt >= 3 {
				return nil, fmt.Errorf("batch get had unprocessed keys after retries")
			}
			out, err := d.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: req})
			if err != nil {
				return nil, fmt.Errorf("dynamodb BatchGetItem failed: %w", err)
			}
			for _, item := range out.Responses[d.table] {
				p, err := fromItem(item)
				if err != nil {
					return nil, err
				}
				found[p.ID] = *p
			}
			req = out.UnprocessedKeys
			if len(req) > 0 {
				time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
			}
		}
	}

	out := make([]models.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *DynamoAdapter) Update(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	key, err := d.key(id)
	if err != nil {
		return nil, err
	}

	sets := []string{"#updated_at = :updated_at"}
	names := map[string]string{"#updated_at": "updated_at", "#product_id": "product_id"}
	values := map[string]any{":updated_at": time.Now().UTC().Format(time.RFC3339Nano)}
	set := func(attr string, v any) {
		sets = append(sets, "#"+attr+" = :"+attr)
		names["#"+attr] = attr
		values[":"+attr] = v
	}
	if patch.ProductName != nil {
		set("product_name", *patch.ProductName)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.PriceCents != nil {
		set("price_cents", *patch.PriceCents)
	}
	avMap, err := attributevalue.MarshalMap(values)
	if err != nil {
		return nil, fmt.Errorf("marshal update values: %w", err)
	}

	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &d.table,
		Key:                       key,
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#product_id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: avMap,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if ddbpkg.IsConditionalCheckFailed(err) {
		return nil, apperrors.NotFound("product %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update item failed: %w", err)
	}
	return fromItem(out.Attributes)
}

// Delete reads the product, then removes it and appends product_deleted in one transaction.
// The delete is conditioned on the row being unchanged since the read; a concurrent update
// causes a re-read.
func (d *DynamoAdapter) Delete(ctx context.Context, id string) (*models.Product, error) {
	key, err := d.key(id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		product, err := d.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		put, err := d.outbox.put(ctx, events.ProductDeleted(product.ID, product.CreatedAt))
		if err != nil {
			return nil, err
		}
		cond, err := attributevalue.MarshalMap(map[string]string{":updated_at": product.UpdatedAt.Format(time.RFC3339Nano)})
		if err != nil {
			return nil, fmt.Errorf("marshal condition: %w", err)
		}

		_, err = d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{Delete: &types.Delete{
					TableName:                 &d.table,
					Key:                       key,
					ConditionExpression:       aws.String("updated_at = :updated_at"),
					ExpressionAttributeValues: cond,
				}},
				{Put: put},
			},
		})
		if ddbpkg.IsConditionalCheckFailed(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("delete product transaction failed: %w", err)
		}
		return product, nil
	}
	return nil, apperrors.Conflict("product %s is being modified concurrently", id)
}
