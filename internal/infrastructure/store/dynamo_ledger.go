package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/checkout-engine/internal/domain/inventory"
)

// DynamoLedgerSink mirrors inventory ledger entries to a DynamoDB table,
// keyed by product id and sorted by timestamp, for audit replay without
// touching the primary database.
type DynamoLedgerSink struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoLedgerEntry is the DynamoDB item structure.
type dynamoLedgerEntry struct {
	ProductID string `dynamodbav:"product_id"`
	SortKey   string `dynamodbav:"sk"` // created_at#entry_id, keeps entries unique per instant
	EntryID   string `dynamodbav:"entry_id"`
	Delta     int    `dynamodbav:"delta"`
	Quantity  int    `dynamodbav:"quantity"`
	Reason    string `dynamodbav:"reason"`
	Actor     string `dynamodbav:"actor"`
	CreatedAt string `dynamodbav:"created_at"`
}

func NewDynamoLedgerSink(ctx context.Context, tableName string) (*DynamoLedgerSink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &DynamoLedgerSink{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

// Append writes one ledger entry. The ledger is append-only; items are
// never updated or deleted.
func (s *DynamoLedgerSink) Append(ctx context.Context, entry inventory.LedgerEntry) error {
	createdAt := entry.CreatedAt.UTC().Format(time.RFC3339Nano)
	item := dynamoLedgerEntry{
		ProductID: entry.ProductID,
		SortKey:   createdAt + "#" + entry.ID,
		EntryID:   entry.ID,
		Delta:     entry.Delta,
		Quantity:  entry.Quantity,
		Reason:    entry.Reason,
		Actor:     entry.Actor,
		CreatedAt: createdAt,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put ledger entry: %w", err)
	}
	return nil
}
