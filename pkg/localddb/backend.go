package localddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"

	"github.com/theory-cloud/todostack"
	"github.com/theory-cloud/todostack/pkg/observability"
)

// BackendName identifies deployments made by Backend.
const BackendName = "dynamodb-local"

const defaultWaitTimeout = time.Minute

// Backend provisions a graph's table on DynamoDB Local. The routing layer and compute
// unit are served in-process by the front door, whose URL is reported as the endpoint.
type Backend struct {
	client      DynamoDBClient
	apiURL      string
	endpoint    string
	logger      observability.StructuredLogger
	waitTimeout time.Duration
	minDelay    time.Duration
	newID       func() string
}

var _ todostack.Backend = (*Backend)(nil)

type Option func(*Backend)

// WithLogger routes provisioning logs to logger.
func WithLogger(logger observability.StructuredLogger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithWaitTimeout bounds how long Provision waits for the table to become active.
func WithWaitTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.waitTimeout = d
	}
}

// WithDeploymentIDs replaces the ULID deployment id generator.
func WithDeploymentIDs(fn func() string) Option {
	return func(b *Backend) {
		b.newID = fn
	}
}

// WithDatabaseEndpoint records the DynamoDB Local URL in the deployment resources.
func WithDatabaseEndpoint(endpoint string) Option {
	return func(b *Backend) {
		b.endpoint = endpoint
	}
}

// NewBackend returns a backend creating tables through client and reporting apiURL.
func NewBackend(client DynamoDBClient, apiURL string, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, errors.New("localddb: client is required")
	}
	if apiURL == "" {
		return nil, errors.New("localddb: api url is required")
	}
	b := &Backend{
		client:      client,
		apiURL:      apiURL,
		logger:      observability.NewNoOpLogger(),
		waitTimeout: defaultWaitTimeout,
		minDelay:    time.Second,
		newID:       func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.logger == nil {
		b.logger = observability.NewNoOpLogger()
	}
	return b, nil
}

func (b *Backend) Name() string {
	return BackendName
}

// Provision creates the table and its index, reusing a table that already exists, and
// waits until it is active.
func (b *Backend) Provision(ctx context.Context, graph *todostack.Graph) (todostack.Deployment, error) {
	if graph == nil || !graph.Table.Defined() {
		return todostack.Deployment{}, todostack.ErrUndefinedTable
	}
	table := graph.Table
	log := b.logger.WithFields(map[string]any{"table": table.Identifier})

	_, err := b.client.CreateTable(ctx, CreateTableInput(table))
	var inUse *types.ResourceInUseException
	switch {
	case err == nil:
		log.Info("table created")
	case errors.As(err, &inUse):
		log.Info("table exists, reusing")
	default:
		return todostack.Deployment{}, fmt.Errorf("localddb: create table %s: %w", table.Identifier, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(b.client, func(o *dynamodb.TableExistsWaiterOptions) {
		o.MinDelay = b.minDelay
		if o.MaxDelay < o.MinDelay {
			o.MaxDelay = o.MinDelay
		}
	})
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table.Identifier)}, b.waitTimeout); err != nil {
		return todostack.Deployment{}, fmt.Errorf("localddb: wait for table %s: %w", table.Identifier, err)
	}

	resources := map[string]string{table.LogicalName: table.Identifier}
	if b.endpoint != "" {
		resources["DynamoDBEndpoint"] = b.endpoint
	}
	return todostack.Deployment{
		Backend:         BackendName,
		ID:              b.newID(),
		TableIdentifier: table.Identifier,
		Endpoint:        b.apiURL,
		Resources:       resources,
	}, nil
}

// CreateTableInput renders table as a CreateTable request.
func CreateTableInput(table todostack.Table) *dynamodb.CreateTableInput {
	attrs := table.AttributeDefinitions()
	defs := make([]types.AttributeDefinition, 0, len(attrs))
	for _, a := range attrs {
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(a.Name),
			AttributeType: types.ScalarAttributeType(a.Type),
		})
	}

	in := &dynamodb.CreateTableInput{
		TableName:            aws.String(table.Identifier),
		AttributeDefinitions: defs,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(table.PartitionKey.Name), KeyType: types.KeyTypeHash},
		},
		BillingMode: billingMode(table.Billing),
	}
	if idx := table.Index; idx != nil {
		in.GlobalSecondaryIndexes = []types.GlobalSecondaryIndex{{
			IndexName: aws.String(idx.Name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(idx.PartitionKey.Name), KeyType: types.KeyTypeHash},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionType(idx.Projection)},
		}}
	}
	if in.BillingMode == types.BillingModeProvisioned {
		throughput := &types.ProvisionedThroughput{ReadCapacityUnits: aws.Int64(5), WriteCapacityUnits: aws.Int64(5)}
		in.ProvisionedThroughput = throughput
		for i := range in.GlobalSecondaryIndexes {
			in.GlobalSecondaryIndexes[i].ProvisionedThroughput = throughput
		}
	}
	return in
}

func billingMode(mode todostack.BillingMode) types.BillingMode {
	if mode == todostack.BillingProvisioned {
		return types.BillingModeProvisioned
	}
	return types.BillingModePayPerRequest
}
