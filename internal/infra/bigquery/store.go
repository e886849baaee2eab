package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

var _ pipeline.Store = (*Store)(nil)

// Store is the BigQuery implementation of pipeline.Store. It holds a shared
// BigQuery client to avoid creating a new connection for each operation.
type Store struct {
	client *bigquery.Client
	ds     Dataset
}

// NewStore creates a Store with its own client for the project.
func NewStore(ctx context.Context, ds Dataset) (*Store, error) {
	client, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, ds), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *bigquery.Client, ds Dataset) *Store {
	return &Store{client: client, ds: ds}
}

// Client exposes the underlying client, e.g. for migrations.
func (s *Store) Client() *bigquery.Client {
	return s.client
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) ListCategoryRules(ctx context.Context, categories []string) ([]domain.CategoryRule, error) {
	return ListCategoryRulesWithClient(ctx, s.client, s.ds, categories)
}

func (s *Store) ReadCustomers(ctx context.Context) ([]domain.RawCustomer, error) {
	return ReadCustomersWithClient(ctx, s.client, s.ds)
}

func (s *Store) ReadBalance(ctx context.Context) ([]domain.RawBalance, error) {
	return ReadBalanceWithClient(ctx, s.client, s.ds)
}

func (s *Store) ReadOrders(ctx context.Context) ([]domain.RawOrder, error) {
	return ReadOrdersWithClient(ctx, s.client, s.ds)
}

func (s *Store) CommitBatch(ctx context.Context, batch *domain.Batch) error {
	return CommitBatchWithClient(ctx, s.client, s.ds, batch)
}

func (s *Store) StartRun(ctx context.Context) (string, error) {
	return StartRunWithClient(ctx, s.client, s.ds)
}

func (s *Store) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	MarkRunFailedWithClient(ctx, s.client, s.ds, runID, runErr)
}

func (s *Store) MarkRunSucceeded(ctx context.Context, runID string, summary *domain.Summary) error {
	return MarkRunSucceededWithClient(ctx, s.client, s.ds, runID, summary)
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	return ListRunsWithClient(ctx, s.client, s.ds, limit)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	return ListUsersWithClient(ctx, s.client, s.ds)
}

func (s *Store) ListBalanceEntries(ctx context.Context) ([]domain.BalanceEntry, error) {
	return ListBalanceEntriesWithClient(ctx, s.client, s.ds)
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return ListOrdersWithClient(ctx, s.client, s.ds)
}

func (s *Store) ListRejected(ctx context.Context, category string) ([]domain.RejectedRecord, error) {
	return ListRejectedWithClient(ctx, s.client, s.ds, category)
}
