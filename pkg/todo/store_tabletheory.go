package todo

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/theory-cloud/tabletheory"
	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	tableerrors "github.com/theory-cloud/tabletheory/pkg/errors"
	"github.com/theory-cloud/tabletheory/pkg/session"
)

// Environment read by the handler process.
const (
	EnvTableName   = "TABLE_NAME"
	EnvDDBEndpoint = "DDB_ENDPOINT"
	EnvRegion      = "AWS_REGION"

	EnvAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
)

const (
	defaultRegion   = "us-east-1"
	localCredential = "dummy"
)

// LocalCredentials returns the static key pair sent to DynamoDB Local. Blank values fall
// back to "dummy". DynamoDB Local keeps a separate database per access key and region
// unless it runs with -sharedDb, so every local client must sign with the same pair.
func LocalCredentials(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	if strings.TrimSpace(accessKeyID) == "" {
		accessKeyID = localCredential
	}
	if strings.TrimSpace(secretAccessKey) == "" {
		secretAccessKey = localCredential
	}
	return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
}

// todoRecord is the DynamoDB representation of a todo.
type todoRecord struct {
	_ struct{} `theorydb:"naming:snake_case"`

	ID          string  `json:"id" theorydb:"pk,attr:id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty" theorydb:"omitempty"`
	Status      string  `json:"status" theorydb:"index:status-index,pk"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func (todoRecord) TableName() string {
	if name := strings.TrimSpace(os.Getenv(EnvTableName)); name != "" {
		return name
	}
	return "todos"
}

func recordFromTodo(t Todo) *todoRecord {
	return &todoRecord{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (r *todoRecord) todo() Todo {
	return Todo{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// TableTheoryStore implements Store on the table named by TABLE_NAME.
type TableTheoryStore struct {
	db tablecore.DB
}

var _ Store = (*TableTheoryStore)(nil)

func NewTableTheoryStore(db tablecore.DB) *TableTheoryStore {
	return &TableTheoryStore{db: db}
}

// StoreConfig locates the table's DynamoDB endpoint.
type StoreConfig struct {
	Region string
	// Endpoint targets DynamoDB Local when set; LocalCredentials signs requests to it.
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string
}

// StoreConfigFromEnv reads AWS_REGION, DDB_ENDPOINT and the static access key pair.
func StoreConfigFromEnv(getenv func(string) string) StoreConfig {
	if getenv == nil {
		getenv = os.Getenv
	}
	region := strings.TrimSpace(getenv(EnvRegion))
	if region == "" {
		region = strings.TrimSpace(getenv("AWS_DEFAULT_REGION"))
	}
	if region == "" {
		region = defaultRegion
	}
	return StoreConfig{
		Region:   region,
		Endpoint: strings.TrimSpace(getenv(EnvDDBEndpoint)),

		AccessKeyID:     strings.TrimSpace(getenv(EnvAccessKeyID)),
		SecretAccessKey: strings.TrimSpace(getenv(EnvSecretAccessKey)),
	}
}

// OpenTableTheory connects TableTheory using cfg.
func OpenTableTheory(cfg StoreConfig) (tablecore.DB, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(LocalCredentials(cfg.AccessKeyID, cfg.SecretAccessKey)))
	}

	db, err := tabletheory.NewBasic(session.Config{
		Region:           cfg.Region,
		Endpoint:         cfg.Endpoint,
		AWSConfigOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("todo: init tabletheory: %w", err)
	}
	return db, nil
}

func (s *TableTheoryStore) Put(ctx context.Context, t Todo) error {
	return s.db.Model(recordFromTodo(t)).WithContext(ctx).Create()
}

func (s *TableTheoryStore) Get(ctx context.Context, id string) (Todo, error) {
	var record todoRecord
	err := s.db.Model(&todoRecord{}).
		WithContext(ctx).
		Where("ID", "=", id).
		First(&record)
	if err != nil {
		if tableerrors.IsNotFound(err) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, err
	}
	return record.todo(), nil
}

func (s *TableTheoryStore) List(ctx context.Context, lq ListQuery) (Page, error) {
	q := s.db.Model(&todoRecord{}).WithContext(ctx)
	if status := strings.TrimSpace(lq.Status); status != "" {
		q = q.Index("status-index").Where("Status", "=", status)
	}
	q = q.Limit(normalizeLimit(lq.Limit))
	if cursor := strings.TrimSpace(lq.Cursor); cursor != "" {
		q = q.Cursor(cursor)
	}

	var out []todoRecord
	page, err := q.AllPaginated(&out)
	if err != nil {
		return Page{}, fmt.Errorf("todo: list: %w", err)
	}

	result := Page{Items: make([]Todo, 0, len(out))}
	for i := range out {
		result.Items = append(result.Items, out[i].todo())
	}
	if page != nil && page.HasMore {
		result.NextCursor = page.NextCursor
	}
	return result, nil
}

// Update applies p to an existing todo and returns the stored result. The write is
// conditioned on the item still existing so a concurrent delete yields ErrNotFound.
func (s *TableTheoryStore) Update(ctx context.Context, id string, p Patch, updatedAt string) (Todo, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return Todo{}, err
	}

	ub := s.db.Model(&todoRecord{}).
		WithContext(ctx).
		Where("ID", "=", id).
		UpdateBuilder().
		ConditionExists("ID")
	if p.Title != nil {
		ub = ub.Set("Title", *p.Title)
	}
	if p.Description != nil {
		ub = ub.Set("Description", *p.Description)
	}
	if p.Status != nil {
		ub = ub.Set("Status", *p.Status)
	}
	ub = ub.Set("UpdatedAt", updatedAt)

	var record todoRecord
	if err := ub.ExecuteWithResult(&record); err != nil {
		if tableerrors.IsNotFound(err) || tableerrors.IsConditionFailed(err) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, fmt.Errorf("todo: update: %w", err)
	}
	return record.todo(), nil
}

func (s *TableTheoryStore) Delete(ctx context.Context, id string) error {
	return s.db.Model(&todoRecord{}).
		WithContext(ctx).
		Where("ID", "=", id).
		Delete()
}
