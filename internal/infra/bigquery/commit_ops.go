package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// commitScript replaces all outputs inside one multi-statement transaction.
// Any failing statement rolls back the whole script.
func commitScript(ds Dataset) string {
	return fmt.Sprintf(`
BEGIN
  BEGIN TRANSACTION;

  DELETE FROM %[1]s WHERE TRUE;
  DELETE FROM %[2]s WHERE TRUE;
  DELETE FROM %[3]s WHERE TRUE;
  DELETE FROM %[4]s WHERE TRUE;

  INSERT INTO %[3]s (user_id, country_code, registration_time, traffic_source)
  SELECT u.user_id, u.country_code, u.registration_time, u.traffic_source
  FROM UNNEST(@users) AS u;

  INSERT INTO %[2]s (balance_id, user_id, operation_time, operation_type, operation_amount_usd)
  SELECT b.balance_id, b.user_id, b.operation_time, b.operation_type, b.operation_amount_usd
  FROM UNNEST(@balance) AS b;

  INSERT INTO %[1]s (order_id, user_id, symbol, open_time, close_time, profit_usd)
  SELECT o.order_id, o.user_id, o.symbol, o.open_time, o.close_time, o.profit_usd
  FROM UNNEST(@orders) AS o;

  INSERT INTO %[4]s (category, entity, kind, violated_rule, reason, row_offset, raw)
  SELECT r.category, r.entity, r.kind, r.violated_rule, r.reason, r.row_offset, PARSE_JSON(r.raw)
  FROM UNNEST(@rejected) AS r;

  COMMIT TRANSACTION;
EXCEPTION WHEN ERROR THEN
  ROLLBACK TRANSACTION;
  RAISE USING MESSAGE = @@error.message;
END;
`, ds.Table(ordersTable), ds.Table(balanceTable), ds.Table(usersTable), ds.Table(rejectedTable))
}

// commitParameters converts a batch into the array parameters of commitScript.
// Empty slices are kept non-nil so the array types can still be inferred.
func commitParameters(batch *domain.Batch) []bigquery.QueryParameter {
	users := make([]UserRow, 0, len(batch.Users))
	for _, u := range batch.Users {
		users = append(users, newUserRow(u))
	}
	balance := make([]BalanceEntryRow, 0, len(batch.Balance))
	for _, b := range batch.Balance {
		balance = append(balance, newBalanceEntryRow(b))
	}
	orders := make([]OrderOutRow, 0, len(batch.Orders))
	for _, o := range batch.Orders {
		orders = append(orders, newOrderOutRow(o))
	}
	rejected := make([]RejectedRow, 0, len(batch.Rejected))
	for _, r := range batch.Rejected {
		rejected = append(rejected, newRejectedRow(r))
	}

	return []bigquery.QueryParameter{
		{Name: "users", Value: users},
		{Name: "balance", Value: balance},
		{Name: "orders", Value: orders},
		{Name: "rejected", Value: rejected},
	}
}

// maxCommitRequestBytes is BigQuery's query request size limit. The commit
// script carries every output row as a query parameter, so it bounds the
// batch size on this backend.
const maxCommitRequestBytes = 10 << 20

// ErrCommitTooLarge is returned when a batch cannot fit in one commit request.
var ErrCommitTooLarge = errors.New("batch exceeds the commit request size limit")

// CommitBatchWithClient applies a batch atomically.
// TODO: stage rows through load jobs into temporary tables once batches outgrow the query parameter size limit.
func CommitBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batch *domain.Batch) error {
	if err := checkCommitSize(batch, maxCommitRequestBytes); err != nil {
		return fmt.Errorf("CommitBatch: %w", err)
	}

	q := client.Query(commitScript(ds))
	q.Parameters = commitParameters(batch)
	return runQuery(ctx, q, "CommitBatch")
}

// checkCommitSize estimates the encoded size of the batch rows and fails
// before anything is sent when it exceeds limit. The estimate is the JSON
// size of the rows, which is what the query request carries.
func checkCommitSize(batch *domain.Batch, limit int) error {
	size := 0
	for _, rows := range []any{batch.Users, batch.Balance, batch.Orders, batch.Rejected} {
		b, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("estimate commit size: %w", err)
		}
		size += len(b)
		if size > limit {
			return fmt.Errorf("%w: more than %d bytes of rows (users=%d balance=%d orders=%d rejected=%d)",
				ErrCommitTooLarge, limit, len(batch.Users), len(batch.Balance), len(batch.Orders), len(batch.Rejected))
		}
	}
	return nil
}
