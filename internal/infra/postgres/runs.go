package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/logger"
)

// runRow mirrors pipeline_runs; summary is nullable jsonb.
type runRow struct {
	RunID        string     `db:"run_id"`
	StartedAt    time.Time  `db:"started_ts"`
	FinishedAt   *time.Time `db:"finished_ts"`
	Status       string     `db:"status"`
	ErrorMessage string     `db:"error_message"`
	Summary      []byte     `db:"summary"`
}

func (s *Store) StartRun(ctx context.Context) (string, error) {
	runID := uuid.New().String()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableRuns)
	ib.Cols("run_id", "started_ts", "status")
	ib.Values(runID, time.Now().UTC(), string(domain.RunStatusRunning))
	query, args := ib.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("StartRun: insert run: %w", err)
	}
	return runID, nil
}

func (s *Store) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
		if len(msg) > maxErrorMessageLength {
			msg = msg[:maxErrorMessageLength]
		}
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableRuns)
	ub.Set(
		ub.Assign("status", string(domain.RunStatusFailed)),
		ub.Assign("finished_ts", time.Now().UTC()),
		ub.Assign("error_message", msg),
	)
	ub.Where(ub.Equal("run_id", runID))
	query, args := ub.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("run_id", runID).Msg("failed to mark run as FAILED")
	}
}

func (s *Store) MarkRunSucceeded(ctx context.Context, runID string, summary *domain.Summary) error {
	payload, err := domain.EncodeSummary(summary)
	if err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableRuns)
	ub.Set(
		ub.Assign("status", string(domain.RunStatusSuccess)),
		ub.Assign("finished_ts", time.Now().UTC()),
		ub.Assign("summary", string(payload)),
	)
	ub.Where(ub.Equal("run_id", runID))
	query, args := ub.Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("MarkRunSucceeded: update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("MarkRunSucceeded: run %s not found", runID)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("run_id", "started_ts", "finished_ts", "status", "error_message", "summary")
	sb.From(tableRuns)
	sb.OrderBy("started_ts").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}
	query, args := sb.Build()

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("ListRuns: select: %w", err)
	}

	runs := make([]domain.Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, domain.Run{
			RunID:        r.RunID,
			StartedAt:    r.StartedAt,
			FinishedAt:   r.FinishedAt,
			Status:       domain.RunStatus(r.Status),
			ErrorMessage: r.ErrorMessage,
			Summary:      r.Summary,
		})
	}
	return runs, nil
}
