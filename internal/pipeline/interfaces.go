package pipeline

import (
	"context"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// CategoryRuleRepository is the live source of allowed categorical values.
type CategoryRuleRepository interface {
	// ListCategoryRules returns the allowed values of the given categories.
	ListCategoryRules(ctx context.Context, categories []string) ([]domain.CategoryRule, error)
}

// StagingReader reads the raw staging relations in a stable order.
type StagingReader interface {
	ReadCustomers(ctx context.Context) ([]domain.RawCustomer, error)
	ReadBalance(ctx context.Context) ([]domain.RawBalance, error)
	ReadOrders(ctx context.Context) ([]domain.RawOrder, error)
}

// BatchCommitter applies a computed batch as one atomic unit. The previous
// run's outputs and audit rows are superseded in the same unit; on error
// nothing of the batch is visible.
type BatchCommitter interface {
	CommitBatch(ctx context.Context, batch *domain.Batch) error
}

// RunRepository keeps the bookkeeping rows of batch runs.
type RunRepository interface {
	// StartRun inserts a run with status=RUNNING and returns its ID.
	StartRun(ctx context.Context) (string, error)

	// MarkRunFailed sets status=FAILED and the error message. Failures are logged, not returned.
	MarkRunFailed(ctx context.Context, runID string, runErr error)

	// MarkRunSucceeded sets status=SUCCESS and stores the summary.
	MarkRunSucceeded(ctx context.Context, runID string, summary *domain.Summary) error

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
}

// OutputReader reads the committed normalized tables and audit store.
type OutputReader interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListBalanceEntries(ctx context.Context) ([]domain.BalanceEntry, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)

	// ListRejected returns the audit rows of one category, or all of them when category is empty.
	ListRejected(ctx context.Context, category string) ([]domain.RejectedRecord, error)
}

// Store is everything a backend provides to the pipeline and its callers.
type Store interface {
	CategoryRuleRepository
	StagingReader
	BatchCommitter
	RunRepository
	OutputReader

	Close() error
}

// Archiver keeps a copy of a committed run outside the store.
type Archiver interface {
	ArchiveRun(ctx context.Context, staging *domain.Staging, batch *domain.Batch, summary *domain.Summary) error
}
