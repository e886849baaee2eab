package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/logger"
	"github.com/dvloznov/trading-ingest/internal/metrics"
)

// Options tune a batch run.
type Options struct {
	// AuditAllRejections also audits referential and domain rejections.
	// By default only categorical rejections reach the audit store.
	AuditAllRejections bool
}

// Coordinator runs batches against a store. At most one batch runs at a
// time per Coordinator.
type Coordinator struct {
	store    Store
	archiver Archiver
	opts     Options

	mu sync.Mutex
}

// NewCoordinator creates a Coordinator. archiver may be nil.
func NewCoordinator(store Store, archiver Archiver, opts Options) *Coordinator {
	return &Coordinator{store: store, archiver: archiver, opts: opts}
}

// RunBatch ingests the current staging contents. Either the whole batch
// (outputs and audit rows) is committed, or nothing is and a *BatchError
// wrapping ErrBatchFailed is returned.
func (c *Coordinator) RunBatch(ctx context.Context) (*domain.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := logger.FromContext(ctx)
	start := time.Now()

	state := &PipelineState{}
	err := NewBatchPipeline(c.store, c.archiver, c.opts).Execute(ctx, state)
	if err != nil {
		if state.RunID != "" {
			c.store.MarkRunFailed(context.WithoutCancel(ctx), state.RunID, err)
		}
		metrics.RecordRun(domain.RunStatusFailed, time.Since(start), nil)

		var be *BatchError
		if errors.As(err, &be) {
			log.Error().Err(be.Err).Str("run_id", be.RunID).Str("step", be.Step).Msg("batch run failed")
		}
		return nil, err
	}

	metrics.RecordRun(domain.RunStatusSuccess, time.Since(start), state.Summary)
	log.Info().
		Str("run_id", state.RunID).
		Int("users", len(state.Batch.Users)).
		Int("balance", len(state.Batch.Balance)).
		Int("orders", len(state.Batch.Orders)).
		Int("audited", state.Summary.Audited).
		Dur("elapsed", time.Since(start)).
		Msg("batch run committed")

	return state.Summary, nil
}
