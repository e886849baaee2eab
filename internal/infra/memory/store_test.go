package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

func TestStore_ListCategoryRulesFiltersCategories(t *testing.T) {
	s := New()
	s.AddCategoryRule("traffic_source", "google")
	s.AddCategoryRule("operation_type", "deposit")
	s.AddCategoryRule("device", "ios")

	rules, err := s.ListCategoryRules(context.Background(), []string{"traffic_source", "operation_type"})
	require.NoError(t, err)
	assert.Equal(t, []domain.CategoryRule{
		{Category: "traffic_source", AllowedValue: "google"},
		{Category: "operation_type", AllowedValue: "deposit"},
	}, rules)
}

func TestStore_CommitBatchRejectsConstraintViolations(t *testing.T) {
	open := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	closed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		batch domain.Batch
	}{
		{"duplicate user", domain.Batch{Users: []domain.User{{UserID: 1}, {UserID: 1}}}},
		{"orphan balance", domain.Batch{Balance: []domain.BalanceEntry{{BalanceID: 1, UserID: 9}}}},
		{"negative balance", domain.Batch{
			Users:   []domain.User{{UserID: 1}},
			Balance: []domain.BalanceEntry{{BalanceID: 1, UserID: 1, OperationAmountUSD: -1}},
		}},
		{"order open after close", domain.Batch{
			Users:  []domain.User{{UserID: 1}},
			Orders: []domain.Order{{OrderID: 1, UserID: 1, OpenTime: open, CloseTime: &closed}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			require.NoError(t, s.CommitBatch(context.Background(), &domain.Batch{Users: []domain.User{{UserID: 42}}}))

			err := s.CommitBatch(context.Background(), &tt.batch)
			require.Error(t, err)

			users, err := s.ListUsers(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []domain.User{{UserID: 42}}, users)
		})
	}
}

func TestStore_CommitBatchReplacesOutputs(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CommitBatch(ctx, &domain.Batch{
		Users:    []domain.User{{UserID: 1}, {UserID: 2}},
		Rejected: []domain.RejectedRecord{{Category: "unknown_traffic_source"}, {Category: "unknown_operation_type"}},
	}))
	require.NoError(t, s.CommitBatch(ctx, &domain.Batch{Users: []domain.User{{UserID: 3}}}))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.User{{UserID: 3}}, users)

	rejected, err := s.ListRejected(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, rejected)
}

func TestStore_ListRejectedByCategory(t *testing.T) {
	s := New()
	require.NoError(t, s.CommitBatch(context.Background(), &domain.Batch{
		Rejected: []domain.RejectedRecord{
			{Category: "unknown_traffic_source", Offset: 1},
			{Category: "unknown_operation_type", Offset: 2},
		},
	}))

	got, err := s.ListRejected(context.Background(), "unknown_operation_type")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Offset)
}

func TestStore_RunLifecycle(t *testing.T) {
	s := New()
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	ctx := context.Background()

	first, err := s.StartRun(ctx)
	require.NoError(t, err)
	s.MarkRunFailed(ctx, first, errors.New(string(make([]byte, 3000))))

	second, err := s.StartRun(ctx)
	require.NoError(t, err)
	summary := domain.NewSummary(second)
	summary.Audited = 3
	require.NoError(t, s.MarkRunSucceeded(ctx, second, summary))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second, runs[0].RunID)
	assert.Equal(t, domain.RunStatusSuccess, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Contains(t, string(runs[0].Summary), `"audited":3`)

	assert.Equal(t, first, runs[1].RunID)
	assert.Equal(t, domain.RunStatusFailed, runs[1].Status)
	assert.Len(t, runs[1].ErrorMessage, maxErrorMessageLength)

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.Error(t, s.MarkRunSucceeded(ctx, "missing", summary))
}
