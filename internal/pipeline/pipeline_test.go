package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/infra/memory"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

// MockStore wraps a memory store and lets tests override single operations.
type MockStore struct {
	*memory.Store

	CommitBatchFunc   func(ctx context.Context, batch *domain.Batch) error
	ReadOrdersFunc    func(ctx context.Context) ([]domain.RawOrder, error)
	MarkRunFailedFunc func(ctx context.Context, runID string, runErr error)
}

func (m *MockStore) CommitBatch(ctx context.Context, batch *domain.Batch) error {
	if m.CommitBatchFunc != nil {
		return m.CommitBatchFunc(ctx, batch)
	}
	return m.Store.CommitBatch(ctx, batch)
}

func (m *MockStore) ReadOrders(ctx context.Context) ([]domain.RawOrder, error) {
	if m.ReadOrdersFunc != nil {
		return m.ReadOrdersFunc(ctx)
	}
	return m.Store.ReadOrders(ctx)
}

func (m *MockStore) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	if m.MarkRunFailedFunc != nil {
		m.MarkRunFailedFunc(ctx, runID, runErr)
	}
	m.Store.MarkRunFailed(ctx, runID, runErr)
}

// MockArchiver records archive calls.
type MockArchiver struct {
	ArchiveRunFunc func(ctx context.Context, staging *domain.Staging, batch *domain.Batch, summary *domain.Summary) error
	calls          int
}

func (m *MockArchiver) ArchiveRun(ctx context.Context, staging *domain.Staging, batch *domain.Batch, summary *domain.Summary) error {
	m.calls++
	if m.ArchiveRunFunc != nil {
		return m.ArchiveRunFunc(ctx, staging, batch, summary)
	}
	return nil
}

func str(s string) *string   { return &s }
func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }
func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

type CoordinatorSuite struct {
	suite.Suite
	store *memory.Store
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.store = memory.New()
	s.store.SetCategoryRules(
		domain.CategoryRule{Category: pipeline.CategoryTrafficSource, AllowedValue: "google"},
		domain.CategoryRule{Category: pipeline.CategoryTrafficSource, AllowedValue: "organic"},
		domain.CategoryRule{Category: pipeline.CategoryOperationType, AllowedValue: "deposit"},
		domain.CategoryRule{Category: pipeline.CategoryOperationType, AllowedValue: "withdrawal"},
	)
	s.store.SetStaging(domain.Staging{
		Customers: []domain.RawCustomer{
			{UserID: i64(1), CountryCode: str("DE"), RegistrationTime: ts("2024-01-01T00:00:00Z"), TrafficSource: str("Google")},
			{UserID: i64(2), CountryCode: str("FR"), RegistrationTime: ts("2024-01-02T00:00:00Z"), TrafficSource: str("facebook")},
		},
		Balance: []domain.RawBalance{
			{UserID: i64(1), OperationTime: ts("2024-02-01T00:00:00Z"), OperationType: str("deposit"), OperationAmountUSD: f64(10)},
			{UserID: i64(2), OperationTime: ts("2024-02-01T00:00:00Z"), OperationType: str("deposit"), OperationAmountUSD: f64(5)},
		},
		Orders: []domain.RawOrder{
			{UserID: i64(1), Symbol: str("eurusd"), OpenTime: ts("2024-02-01T10:00:00Z"), CloseTime: ts("2024-02-01T11:00:00Z"), ProfitUSD: f64(2)},
			{UserID: i64(2), Symbol: str("eurusd"), OpenTime: ts("2024-02-01T10:00:00Z")},
		},
	})
}

func (s *CoordinatorSuite) outputs() ([]domain.User, []domain.BalanceEntry, []domain.Order, []domain.RejectedRecord) {
	ctx := context.Background()
	users, err := s.store.ListUsers(ctx)
	s.Require().NoError(err)
	balance, err := s.store.ListBalanceEntries(ctx)
	s.Require().NoError(err)
	orders, err := s.store.ListOrders(ctx)
	s.Require().NoError(err)
	rejected, err := s.store.ListRejected(ctx, "")
	s.Require().NoError(err)
	return users, balance, orders, rejected
}

func (s *CoordinatorSuite) TestRunBatchCommits() {
	archiver := &MockArchiver{}
	c := pipeline.NewCoordinator(s.store, archiver, pipeline.Options{})

	summary, err := c.RunBatch(context.Background())
	s.Require().NoError(err)

	users, balance, orders, rejected := s.outputs()
	s.Len(users, 1)
	s.Len(balance, 1)
	s.Len(orders, 1)
	s.Require().Len(rejected, 1)
	s.Equal("unknown_traffic_source", rejected[0].Category)
	s.Equal(1, archiver.calls)

	runs, err := s.store.ListRuns(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal(domain.RunStatusSuccess, runs[0].Status)
	s.Equal(summary.RunID, runs[0].RunID)
	s.JSONEq(string(mustEncode(s.T(), summary)), string(runs[0].Summary))
}

func (s *CoordinatorSuite) TestIdempotentReruns() {
	c := pipeline.NewCoordinator(s.store, nil, pipeline.Options{AuditAllRejections: true})

	_, err := c.RunBatch(context.Background())
	s.Require().NoError(err)
	u1, b1, o1, r1 := s.outputs()

	_, err = c.RunBatch(context.Background())
	s.Require().NoError(err)
	u2, b2, o2, r2 := s.outputs()

	s.Equal(u1, u2)
	s.Equal(b1, b2)
	s.Equal(o1, o2)
	s.Equal(r1, r2)
}

func (s *CoordinatorSuite) TestAuditRoundTrip() {
	c := pipeline.NewCoordinator(s.store, nil, pipeline.Options{})
	_, err := c.RunBatch(context.Background())
	s.Require().NoError(err)

	rejected, err := s.store.ListRejected(context.Background(), "unknown_traffic_source")
	s.Require().NoError(err)
	s.Require().Len(rejected, 1)

	// Correct the category in staging and rerun.
	s.store.UpdateStaging(func(st *domain.Staging) {
		st.Customers[rejected[0].Offset].TrafficSource = str("organic")
	})
	_, err = c.RunBatch(context.Background())
	s.Require().NoError(err)

	users, balance, orders, rejected := s.outputs()
	s.Len(users, 2)
	s.Len(balance, 2)
	s.Len(orders, 2)
	s.Empty(rejected)
}

func (s *CoordinatorSuite) TestAuditRoundTrip_OperationType() {
	s.store.UpdateStaging(func(st *domain.Staging) {
		st.Balance = append(st.Balance, domain.RawBalance{
			UserID: i64(1), OperationTime: ts("2024-02-03T00:00:00Z"), OperationType: str(" Bonus "), OperationAmountUSD: f64(3),
		})
	})
	c := pipeline.NewCoordinator(s.store, nil, pipeline.Options{})

	summary, err := c.RunBatch(context.Background())
	s.Require().NoError(err)
	s.Equal(1, summary.Rejections[pipeline.CategoricalTag(pipeline.CategoryOperationType)])

	rejected, err := s.store.ListRejected(context.Background(), "unknown_operation_type")
	s.Require().NoError(err)
	s.Require().Len(rejected, 1)
	s.Equal(domain.EntityBalance, rejected[0].Entity)
	s.Contains(string(rejected[0].Raw), "Bonus")

	_, balance, _, _ := s.outputs()
	s.Len(balance, 1)

	// Extend the registry instead of editing staging, then rerun.
	s.store.AddCategoryRule(pipeline.CategoryOperationType, "bonus")
	_, err = c.RunBatch(context.Background())
	s.Require().NoError(err)

	rejected, err = s.store.ListRejected(context.Background(), "unknown_operation_type")
	s.Require().NoError(err)
	s.Empty(rejected)

	_, balance, _, _ = s.outputs()
	s.Require().Len(balance, 2)
	types := []string{balance[0].OperationType, balance[1].OperationType}
	s.ElementsMatch([]string{"deposit", "bonus"}, types)
}

func (s *CoordinatorSuite) TestCommitFailureLeavesPreviousState() {
	c := pipeline.NewCoordinator(s.store, nil, pipeline.Options{})
	_, err := c.RunBatch(context.Background())
	s.Require().NoError(err)
	u1, b1, o1, r1 := s.outputs()

	boom := errors.New("disk full")
	var failedRun string
	mock := &MockStore{
		Store: s.store,
		CommitBatchFunc: func(ctx context.Context, batch *domain.Batch) error {
			return boom
		},
		MarkRunFailedFunc: func(ctx context.Context, runID string, runErr error) {
			failedRun = runID
		},
	}
	s.store.UpdateStaging(func(st *domain.Staging) {
		st.Customers[1].TrafficSource = str("organic")
	})

	summary, err := pipeline.NewCoordinator(mock, nil, pipeline.Options{}).RunBatch(context.Background())
	s.Require().Error(err)
	s.Nil(summary)
	s.ErrorIs(err, pipeline.ErrBatchFailed)
	s.ErrorIs(err, boom)

	var be *pipeline.BatchError
	s.Require().ErrorAs(err, &be)
	s.Equal("commit", be.Step)
	s.Equal(be.RunID, failedRun)

	u2, b2, o2, r2 := s.outputs()
	s.Equal(u1, u2)
	s.Equal(b1, b2)
	s.Equal(o1, o2)
	s.Equal(r1, r2)

	runs, err := s.store.ListRuns(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal(domain.RunStatusFailed, runs[0].Status)
	s.Contains(runs[0].ErrorMessage, "disk full")
}

func (s *CoordinatorSuite) TestStagingReadFailure() {
	mock := &MockStore{
		Store: s.store,
		ReadOrdersFunc: func(ctx context.Context) ([]domain.RawOrder, error) {
			return nil, errors.New("relation customer_orders does not exist")
		},
	}

	_, err := pipeline.NewCoordinator(mock, nil, pipeline.Options{}).RunBatch(context.Background())
	s.Require().Error(err)

	var be *pipeline.BatchError
	s.Require().ErrorAs(err, &be)
	s.Equal("load_staging", be.Step)

	users, _, _, _ := s.outputs()
	s.Empty(users)
}

func (s *CoordinatorSuite) TestArchiveFailureIsNotFatal() {
	archiver := &MockArchiver{
		ArchiveRunFunc: func(ctx context.Context, staging *domain.Staging, batch *domain.Batch, summary *domain.Summary) error {
			return errors.New("bucket not found")
		},
	}

	summary, err := pipeline.NewCoordinator(s.store, archiver, pipeline.Options{}).RunBatch(context.Background())
	s.Require().NoError(err)
	s.NotNil(summary)
	s.Equal(1, archiver.calls)
}

func (s *CoordinatorSuite) TestCancelledBeforeCommit() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.NewCoordinator(s.store, nil, pipeline.Options{}).RunBatch(ctx)
	s.Require().Error(err)
	s.ErrorIs(err, pipeline.ErrBatchFailed)

	users, _, _, _ := s.outputs()
	s.Empty(users)
}

func TestBatchError(t *testing.T) {
	cause := errors.New("boom")
	err := &pipeline.BatchError{RunID: "r1", Step: "commit", Err: cause}

	assert.Equal(t, "batch r1 failed at commit: boom", err.Error())
	assert.ErrorIs(t, err, pipeline.ErrBatchFailed)
	assert.ErrorIs(t, err, cause)
}

func mustEncode(t *testing.T, s *domain.Summary) []byte {
	t.Helper()
	b, err := domain.EncodeSummary(s)
	require.NoError(t, err)
	return b
}
