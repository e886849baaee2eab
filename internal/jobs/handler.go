package jobs

import (
	"context"
	"errors"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/logger"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

// BatchRunner runs one batch. *pipeline.Coordinator implements it.
type BatchRunner interface {
	RunBatch(ctx context.Context) (*domain.Summary, error)
}

// NewBatchRunHandler returns a JobHandler that runs a batch per job and
// records the run ID and summary on it.
func NewBatchRunHandler(runner BatchRunner) JobHandler {
	return func(ctx context.Context, job *BatchRunJob) error {
		log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Int("attempt", job.RetryCount+1).Logger()
		ctx = logger.WithContext(ctx, log)

		summary, err := runner.RunBatch(ctx)
		if err != nil {
			var be *pipeline.BatchError
			if errors.As(err, &be) {
				job.RunID = be.RunID
			}
			return err
		}

		job.RunID = summary.RunID
		job.Summary = summary
		log.Info().Str("run_id", summary.RunID).Msg("batch run job completed")
		return nil
	}
}
