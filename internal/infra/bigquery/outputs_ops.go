package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// ListUsersWithClient returns the committed users ordered by user_id.
func ListUsersWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]domain.User, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT user_id, country_code, registration_time, traffic_source
		FROM %s
		ORDER BY user_id
	`, ds.Table(usersTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: query read: %w", err)
	}

	var users []domain.User
	for {
		var r UserRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUsers: iter next: %w", err)
		}
		users = append(users, r.toDomain())
	}
	return users, nil
}

// ListBalanceEntriesWithClient returns the committed balance rows ordered by balance_id.
func ListBalanceEntriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]domain.BalanceEntry, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT balance_id, user_id, operation_time, operation_type, operation_amount_usd
		FROM %s
		ORDER BY balance_id
	`, ds.Table(balanceTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListBalanceEntries: query read: %w", err)
	}

	var entries []domain.BalanceEntry
	for {
		var r BalanceEntryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListBalanceEntries: iter next: %w", err)
		}
		entries = append(entries, r.toDomain())
	}
	return entries, nil
}

// ListOrdersWithClient returns the committed orders ordered by order_id.
func ListOrdersWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]domain.Order, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT order_id, user_id, symbol, open_time, close_time, profit_usd
		FROM %s
		ORDER BY order_id
	`, ds.Table(ordersTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListOrders: query read: %w", err)
	}

	var orders []domain.Order
	for {
		var r OrderOutRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListOrders: iter next: %w", err)
		}
		orders = append(orders, r.toDomain())
	}
	return orders, nil
}

// ListRejectedWithClient returns audit rows of one category, or all when category is empty.
func ListRejectedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, category string) ([]domain.RejectedRecord, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT category, entity, kind, violated_rule, reason, row_offset, TO_JSON_STRING(raw) AS raw
		FROM %s
		WHERE @category = "" OR category = @category
		ORDER BY category, entity, row_offset
	`, ds.Table(rejectedTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category", Value: category},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRejected: query read: %w", err)
	}

	var records []domain.RejectedRecord
	for {
		var r RejectedRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRejected: iter next: %w", err)
		}
		records = append(records, r.toDomain())
	}
	return records, nil
}
