//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/infra/postgres"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

const migrationsDir = "../../../migrations/postgres"

type StoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	store     *postgres.Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("trading"),
		tcpostgres.WithUsername("ingest"),
		tcpostgres.WithPassword("ingest"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err, "failed to start postgres container")
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	store, err := postgres.Open(ctx, dsn)
	s.Require().NoError(err)
	s.store = store

	s.Require().NoError(store.Migrate(migrationsDir, zerolog.Nop()))
	// A second run is a no-op.
	s.Require().NoError(store.Migrate(migrationsDir, zerolog.Nop()))
}

func (s *StoreSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

func (s *StoreSuite) SetupTest() {
	db := s.store.DB()
	_, err := db.Exec(`TRUNCATE customers, customer_balance, customer_orders, orders, balance, users, rejected_records, pipeline_runs`)
	s.Require().NoError(err)

	_, err = db.Exec(`
		INSERT INTO customers (user_id, country_code, registration_time, traffic_source) VALUES
			(1, 'DE', '2024-01-05T00:00:00Z', ' Google '),
			(2, 'FR', '2024-01-06T00:00:00Z', 'facebook'),
			(7, 'US', '2024-01-01T00:00:00Z', 'organic'),
			(7, 'US', '2024-02-01T00:00:00Z', 'referral')`)
	s.Require().NoError(err)

	_, err = db.Exec(`
		INSERT INTO customer_balance (user_id, operation_time, operation_type, operation_amount_usd) VALUES
			(1, '2024-03-01T00:00:00Z', 'Deposit', 100),
			(1, '2024-03-02T00:00:00Z', 'withdrawal', -5),
			(2, '2024-03-03T00:00:00Z', 'deposit', 50),
			(7, '2024-03-04T00:00:00Z', 'cashback', 3)`)
	s.Require().NoError(err)

	_, err = db.Exec(`
		INSERT INTO customer_orders (user_id, symbol, open_time, close_time, profit_usd) VALUES
			(1, ' eurusd', '2024-03-01T10:00:00Z', '2024-03-01T12:00:00Z', 12.5),
			(1, 'btcusd', '2024-03-02T10:00:00Z', '2024-03-01T10:00:00Z', 1),
			(99, 'xauusd', '2024-03-03T10:00:00Z', NULL, NULL),
			(7, 'gbpusd', '2024-03-04T10:00:00Z', NULL, -3)`)
	s.Require().NoError(err)
}

func (s *StoreSuite) TestCategoryRulesComeFromEnumTypes() {
	rules, err := s.store.ListCategoryRules(context.Background(), pipeline.ValidatedCategories())
	s.Require().NoError(err)

	rs := pipeline.NewRuleSet(rules)
	s.Equal([]string{"organic", "google", "referral"}, rs.AllowedValues(pipeline.CategoryTrafficSource))
	s.Equal([]string{"debit", "credit", "withdrawal", "deposit"}, rs.AllowedValues(pipeline.CategoryOperationType))
	s.Empty(rs.AllowedValues("device_type"))
}

func (s *StoreSuite) TestRunBatch() {
	ctx := context.Background()
	c := pipeline.NewCoordinator(s.store, nil, pipeline.Options{})

	summary, err := c.RunBatch(ctx)
	s.Require().NoError(err)
	s.Equal(2, summary.Entities[domain.EntityUser].Accepted)
	s.Equal(1, summary.Entities[domain.EntityUser].Duplicates)

	users, err := s.store.ListUsers(ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 2)
	s.Equal("google", users[0].TrafficSource)
	s.Equal(int64(7), users[1].UserID)
	s.True(users[1].RegistrationTime.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	balance, err := s.store.ListBalanceEntries(ctx)
	s.Require().NoError(err)
	s.Require().Len(balance, 1)
	s.Equal(100.0, balance[0].OperationAmountUSD)

	orders, err := s.store.ListOrders(ctx)
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal("EURUSD", *orders[0].Symbol)
	s.Nil(orders[1].CloseTime)

	rejected, err := s.store.ListRejected(ctx, "unknown_traffic_source")
	s.Require().NoError(err)
	s.Require().Len(rejected, 1)
	s.JSONEq(`{"user_id":2,"country_code":"FR","registration_time":"2024-01-06T00:00:00Z","traffic_source":"facebook"}`, string(rejected[0].Raw))

	runs, err := s.store.ListRuns(ctx, 5)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal(domain.RunStatusSuccess, runs[0].Status)
	s.Equal(summary.RunID, runs[0].RunID)
	s.NotNil(runs[0].FinishedAt)
	s.Contains(string(runs[0].Summary), `"audited"`)
}

func (s *StoreSuite) TestRerunIsIdempotent() {
	ctx := context.Background()
	c := pipeline.NewCoordinator(s.store, nil, pipeline.Options{AuditAllRejections: true})

	_, err := c.RunBatch(ctx)
	s.Require().NoError(err)
	users1, _ := s.store.ListUsers(ctx)
	orders1, _ := s.store.ListOrders(ctx)
	rejected1, _ := s.store.ListRejected(ctx, "")

	_, err = c.RunBatch(ctx)
	s.Require().NoError(err)
	users2, _ := s.store.ListUsers(ctx)
	orders2, _ := s.store.ListOrders(ctx)
	rejected2, _ := s.store.ListRejected(ctx, "")

	s.Equal(len(users1), len(users2))
	s.Equal(len(orders1), len(orders2))
	s.Equal(len(rejected1), len(rejected2))
	for i := range users1 {
		s.Equal(users1[i].UserID, users2[i].UserID)
		s.Equal(users1[i].TrafficSource, users2[i].TrafficSource)
	}
}

func (s *StoreSuite) TestExtendingEnumAdmitsNewValue() {
	ctx := context.Background()
	_, err := s.store.DB().Exec(`ALTER TYPE traffic_source ADD VALUE IF NOT EXISTS 'facebook'`)
	s.Require().NoError(err)
	s.T().Cleanup(func() {
		// Enum labels cannot be dropped; rebuild the type without it.
		db := s.store.DB()
		_, _ = db.Exec(`TRUNCATE users, balance, orders`)
		_, _ = db.Exec(`ALTER TYPE traffic_source RENAME TO traffic_source_old`)
		_, _ = db.Exec(`CREATE TYPE traffic_source AS ENUM ('organic', 'google', 'referral')`)
		_, _ = db.Exec(`ALTER TABLE users ALTER COLUMN traffic_source TYPE traffic_source USING traffic_source::text::traffic_source`)
		_, _ = db.Exec(`DROP TYPE traffic_source_old`)
	})

	_, err = pipeline.NewCoordinator(s.store, nil, pipeline.Options{}).RunBatch(ctx)
	s.Require().NoError(err)

	users, err := s.store.ListUsers(ctx)
	s.Require().NoError(err)
	s.Len(users, 3)

	rejected, err := s.store.ListRejected(ctx, "unknown_traffic_source")
	s.Require().NoError(err)
	s.Empty(rejected)
}

func (s *StoreSuite) TestCommitFailureRollsBack() {
	ctx := context.Background()
	_, err := pipeline.NewCoordinator(s.store, nil, pipeline.Options{}).RunBatch(ctx)
	s.Require().NoError(err)

	// An enum value the schema does not know slips past validation.
	bad := &domain.Batch{
		RunID: "bad",
		Users: []domain.User{{UserID: 100, TrafficSource: "tiktok"}},
		Rejected: []domain.RejectedRecord{{
			Category: "unknown_traffic_source", Entity: domain.EntityUser, Kind: domain.RejectionCategorical,
			Rule: "traffic_source", Reason: "x", Raw: []byte(`{}`),
		}},
	}
	err = s.store.CommitBatch(ctx, bad)
	s.Require().Error(err)

	users, err := s.store.ListUsers(ctx)
	s.Require().NoError(err)
	s.Len(users, 2)
	for _, u := range users {
		s.NotEqual(int64(100), u.UserID)
	}

	rejected, err := s.store.ListRejected(ctx, "")
	s.Require().NoError(err)
	s.Len(rejected, 1)
}

func (s *StoreSuite) TestMarkRunFailedTruncatesMessage() {
	ctx := context.Background()
	runID, err := s.store.StartRun(ctx)
	s.Require().NoError(err)

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	s.store.MarkRunFailed(ctx, runID, &testError{msg: string(long)})

	runs, err := s.store.ListRuns(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal(domain.RunStatusFailed, runs[0].Status)
	s.Len(runs[0].ErrorMessage, 2000)
	s.Nil(runs[0].Summary)
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
