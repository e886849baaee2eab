package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	customersTable       = "customers"
	customerBalanceTable = "customer_balance"
	customerOrdersTable  = "customer_orders"
	categoryRulesTable   = "category_rules"
	usersTable           = "users"
	balanceTable         = "balance"
	ordersTable          = "orders"
	rejectedTable        = "rejected_records"
	runsTable            = "pipeline_runs"

	maxErrorMessageLength = 2000
)

// Dataset locates the tables of one deployment.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the backquoted, fully qualified name of a table.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// runQuery runs a DML or script job and waits for it to finish.
func runQuery(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}
