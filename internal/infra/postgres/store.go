// Package postgres is the PostgreSQL store backend. Category rules come from
// the traffic_source and operation_type enum types, so the database schema is
// the single source of truth for allowed values.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

var _ pipeline.Store = (*Store)(nil)

const (
	tableCustomers       = "customers"
	tableCustomerBalance = "customer_balance"
	tableCustomerOrders  = "customer_orders"
	tableUsers           = "users"
	tableBalance         = "balance"
	tableOrders          = "orders"
	tableRejected        = "rejected_records"
	tableRuns            = "pipeline_runs"

	// insertChunkSize keeps each INSERT well under the 65535 bind parameter limit.
	insertChunkSize = 1000

	maxErrorMessageLength = 2000
)

var (
	customerStruct = sqlbuilder.NewStruct(domain.RawCustomer{}).For(sqlbuilder.PostgreSQL)
	balanceStruct  = sqlbuilder.NewStruct(domain.RawBalance{}).For(sqlbuilder.PostgreSQL)
	orderStruct    = sqlbuilder.NewStruct(domain.RawOrder{}).For(sqlbuilder.PostgreSQL)

	userOutStruct    = sqlbuilder.NewStruct(domain.User{}).For(sqlbuilder.PostgreSQL)
	balanceOutStruct = sqlbuilder.NewStruct(domain.BalanceEntry{}).For(sqlbuilder.PostgreSQL)
	orderOutStruct   = sqlbuilder.NewStruct(domain.Order{}).For(sqlbuilder.PostgreSQL)
)

// Store implements pipeline.Store on PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: connect: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db), nil
}

// DB exposes the underlying pool for migrations and tests.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
