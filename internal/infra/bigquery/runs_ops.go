package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/logger"
)

// StartRunWithClient inserts a new row into pipeline_runs with status=RUNNING
// and returns the generated run_id.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) (string, error) {
	runID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (run_id, started_ts, status)
		VALUES (@run_id, @started_ts, @status)
	`, ds.Table(runsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: string(domain.RunStatusRunning)},
	}

	if err := runQuery(ctx, q, "StartRun"); err != nil {
		return "", err
	}
	return runID, nil
}

// MarkRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures are logged.
func MarkRunFailedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, runErr error) {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorMessageLength {
			errMsg = errMsg[:maxErrorMessageLength]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, ds.Table(runsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.RunStatusFailed)},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q, "MarkRunFailed"); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("failed to mark run as FAILED")
	}
}

// MarkRunSucceededWithClient sets status=SUCCESS, finished_ts and the summary.
func MarkRunSucceededWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, summary *domain.Summary) error {
	payload, err := domain.EncodeSummary(summary)
	if err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	if payload == nil {
		payload = []byte("{}")
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    summary = PARSE_JSON(@summary)
		WHERE run_id = @run_id
	`, ds.Table(runsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.RunStatusSuccess)},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "summary", Value: string(payload)},
		{Name: "run_id", Value: runID},
	}

	return runQuery(ctx, q, "MarkRunSucceeded")
}

// ListRunsWithClient returns the most recent runs first.
func ListRunsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 100
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			started_ts,
			finished_ts,
			status,
			error_message,
			IF(summary IS NULL, NULL, TO_JSON_STRING(summary)) AS summary
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, ds.Table(runsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: query read: %w", err)
	}

	var runs []domain.Run
	for {
		var r RunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRuns: iter next: %w", err)
		}
		runs = append(runs, r.toDomain())
	}
	return runs, nil
}
