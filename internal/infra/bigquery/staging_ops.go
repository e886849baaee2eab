package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// ReadCustomersWithClient reads the customers staging table ordered over all
// columns, so equal contents always produce equal offsets.
func ReadCustomersWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]domain.RawCustomer, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, country_code, registration_time, traffic_source
		FROM %s
		ORDER BY user_id NULLS LAST, country_code NULLS LAST,
		         registration_time NULLS LAST, traffic_source NULLS LAST
	`, ds.Table(customersTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadCustomers: query read: %w", err)
	}

	var rows []domain.RawCustomer
	for {
		var r CustomerRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadCustomers: iter next: %w", err)
		}
		rows = append(rows, r.toDomain())
	}
	return rows, nil
}

// ReadBalanceWithClient reads the customer_balance staging table.
func ReadBalanceWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]domain.RawBalance, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, operation_time, operation_type, operation_amount_usd
		FROM %s
		ORDER BY user_id NULLS LAST, operation_time NULLS LAST,
		         operation_type NULLS LAST, operation_amount_usd NULLS LAST
	`, ds.Table(customerBalanceTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadBalance: query read: %w", err)
	}

	var rows []domain.RawBalance
	for {
		var r BalanceRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadBalance: iter next: %w", err)
		}
		rows = append(rows, r.toDomain())
	}
	return rows, nil
}

// ReadOrdersWithClient reads the customer_orders staging table.
func ReadOrdersWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]domain.RawOrder, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, symbol, open_time, close_time, profit_usd
		FROM %s
		ORDER BY user_id NULLS LAST, symbol NULLS LAST, open_time NULLS LAST,
		         close_time NULLS LAST, profit_usd NULLS LAST
	`, ds.Table(customerOrdersTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadOrders: query read: %w", err)
	}

	var rows []domain.RawOrder
	for {
		var r OrderRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadOrders: iter next: %w", err)
		}
		rows = append(rows, r.toDomain())
	}
	return rows, nil
}
