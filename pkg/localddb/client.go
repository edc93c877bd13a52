package localddb

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/theory-cloud/todostack/pkg/todo"
)

const (
	EnvEndpoint = "DDB_ENDPOINT"
	EnvRegion   = "AWS_REGION"

	DefaultEndpoint = "http://localhost:8000"
	DefaultRegion   = "us-east-1"
)

// DynamoDBClient is the subset of the DynamoDB API the local stack uses.
type DynamoDBClient interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DynamoDBClient = (*dynamodb.Client)(nil)

// Config locates a DynamoDB Local instance. The key pair must match the one the handler's
// store signs with; blank values use todo.LocalCredentials' default.
type Config struct {
	Endpoint string
	Region   string

	AccessKeyID     string
	SecretAccessKey string
}

// StoreConfig returns the handler store configuration addressing the same local database.
func (c Config) StoreConfig() todo.StoreConfig {
	return todo.StoreConfig{
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
	}
}

// ConfigFromEnv reads DDB_ENDPOINT, AWS_REGION and the static access key pair, falling back
// to the local defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Config{
		Endpoint: strings.TrimSpace(getenv(EnvEndpoint)),
		Region:   strings.TrimSpace(getenv(EnvRegion)),

		AccessKeyID:     strings.TrimSpace(getenv(todo.EnvAccessKeyID)),
		SecretAccessKey: strings.TrimSpace(getenv(todo.EnvSecretAccessKey)),
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg
}

// NewClient returns a DynamoDB client bound to cfg.Endpoint, signing with todo.LocalCredentials.
func NewClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("localddb: endpoint is required")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(todo.LocalCredentials(cfg.AccessKeyID, cfg.SecretAccessKey)),
	)
	if err != nil {
		return nil, fmt.Errorf("localddb: load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	}), nil
}
