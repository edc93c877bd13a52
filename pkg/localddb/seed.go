package localddb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/theory-cloud/todostack"
	"github.com/theory-cloud/todostack/pkg/todo"
)

const (
	seedConcurrency = 8
	seedDescription = "From seed script"
)

// seedItem mirrors the attribute names the handler's store writes.
type seedItem struct {
	ID          string `dynamodbav:"id"`
	Title       string `dynamodbav:"title"`
	Description string `dynamodbav:"description"`
	Status      string `dynamodbav:"status"`
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

// SeedOptions tunes Seed. Zero values use uuid ids and the current time.
type SeedOptions struct {
	NewID func() string
	Now   func() time.Time
}

// Seed writes n pending todos titled "Sample Todo 1".."Sample Todo n" and returns their ids
// in title order.
func Seed(ctx context.Context, client DynamoDBClient, table string, n int, opts SeedOptions) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	stamp := todo.Timestamp(opts.Now())
	ids := make([]string, n)
	for i := range ids {
		ids[i] = opts.NewID()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)
	for i := range ids {
		item := seedItem{
			ID:          ids[i],
			Title:       fmt.Sprintf("Sample Todo %d", i+1),
			Description: seedDescription,
			Status:      todo.StatusPending,
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		}
		g.Go(func() error {
			av, err := attributevalue.MarshalMap(item)
			if err != nil {
				return fmt.Errorf("localddb: marshal %s: %w", item.Title, err)
			}
			_, err = client.PutItem(gctx, &dynamodb.PutItemInput{
				TableName: aws.String(table),
				Item:      av,
			})
			if err != nil {
				return fmt.Errorf("localddb: put %s: %w", item.Title, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// CountByStatus counts the items of table whose status is status, via the status index.
func CountByStatus(ctx context.Context, client DynamoDBClient, table, status string) (int, error) {
	keyCond := expression.Key(todostack.StatusKeyName).Equal(expression.Value(status))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, fmt.Errorf("localddb: build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(client, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		IndexName:                 aws.String(todostack.StatusIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Select:                    types.SelectCount,
	})

	total := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("localddb: query %s: %w", todostack.StatusIndexName, err)
		}
		total += int(page.Count)
	}
	return total, nil
}
