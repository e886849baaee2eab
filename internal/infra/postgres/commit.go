package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/logger"
)

// CommitBatch replaces all outputs and audit rows with the batch in one
// transaction. Any constraint violation rolls the whole batch back.
func (s *Store) CommitBatch(ctx context.Context, batch *domain.Batch) (err error) {
	log := logger.FromContext(ctx)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("CommitBatch: begin: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Str("run_id", batch.RunID).Msg("rollback failed")
		}
	}()

	// Supersede the previous run's outputs.
	truncate := fmt.Sprintf("TRUNCATE TABLE %s, %s, %s, %s", tableOrders, tableBalance, tableUsers, tableRejected)
	if _, err = tx.ExecContext(ctx, truncate); err != nil {
		return fmt.Errorf("CommitBatch: truncate outputs: %w", err)
	}

	if err = insertChunked(ctx, tx, userOutStruct, tableUsers, batch.Users); err != nil {
		return fmt.Errorf("CommitBatch: insert users: %w", describe(err))
	}
	if err = insertChunked(ctx, tx, balanceOutStruct, tableBalance, batch.Balance); err != nil {
		return fmt.Errorf("CommitBatch: insert balance: %w", describe(err))
	}
	if err = insertChunked(ctx, tx, orderOutStruct, tableOrders, batch.Orders); err != nil {
		return fmt.Errorf("CommitBatch: insert orders: %w", describe(err))
	}
	if err = insertRejected(ctx, tx, batch.Rejected); err != nil {
		return fmt.Errorf("CommitBatch: insert rejected records: %w", describe(err))
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("CommitBatch: commit: %w", err)
	}
	return nil
}

func insertChunked[T any](ctx context.Context, tx *sqlx.Tx, st *sqlbuilder.Struct, table string, rows []T) error {
	for start := 0; start < len(rows); start += insertChunkSize {
		end := min(start+insertChunkSize, len(rows))

		values := make([]interface{}, 0, end-start)
		for _, row := range rows[start:end] {
			values = append(values, row)
		}
		query, args := st.InsertInto(table, values...).Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// insertRejected passes raw as text so the server parses it as jsonb.
func insertRejected(ctx context.Context, tx *sqlx.Tx, rows []domain.RejectedRecord) error {
	for start := 0; start < len(rows); start += insertChunkSize {
		end := min(start+insertChunkSize, len(rows))

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(tableRejected)
		ib.Cols("category", "entity", "kind", "violated_rule", "reason", "row_offset", "raw")
		for _, r := range rows[start:end] {
			ib.Values(r.Category, string(r.Entity), string(r.Kind), r.Rule, r.Reason, r.Offset, string(r.Raw))
		}
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// describe adds the violated constraint to server errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint != "" {
		return fmt.Errorf("%w (constraint %s)", err, pqErr.Constraint)
	}
	return err
}
