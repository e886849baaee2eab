package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/logger"
)

// PipelineStep represents a single step of a batch run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all steps of one run.
type PipelineState struct {
	RunID   string
	Rules   *RuleSet
	Staging *domain.Staging
	Batch   *domain.Batch
	Summary *domain.Summary
}

// StartRunStep records the run as RUNNING.
type StartRunStep struct {
	Runs RunRepository
}

func (s *StartRunStep) Name() string { return "start_run" }

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	runID, err := s.Runs.StartRun(ctx)
	if err != nil {
		return err
	}
	state.RunID = runID
	return nil
}

// LoadRulesStep takes this run's snapshot of the category rules.
type LoadRulesStep struct {
	Rules CategoryRuleRepository
}

func (s *LoadRulesStep) Name() string { return "load_rules" }

func (s *LoadRulesStep) Execute(ctx context.Context, state *PipelineState) error {
	rules, err := LoadRuleSet(ctx, s.Rules, ValidatedCategories()...)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	for _, category := range ValidatedCategories() {
		if len(rules.AllowedValues(category)) == 0 {
			log.Warn().
				Str("category", category).
				Msg("no allowed values registered; every row of this category will be rejected")
		}
	}
	state.Rules = rules
	return nil
}

// LoadStagingStep reads the three staging relations concurrently.
type LoadStagingStep struct {
	Staging StagingReader
}

func (s *LoadStagingStep) Name() string { return "load_staging" }

func (s *LoadStagingStep) Execute(ctx context.Context, state *PipelineState) error {
	staging := &domain.Staging{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.Staging.ReadCustomers(gctx)
		if err != nil {
			return fmt.Errorf("read customers: %w", err)
		}
		staging.Customers = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.Staging.ReadBalance(gctx)
		if err != nil {
			return fmt.Errorf("read customer_balance: %w", err)
		}
		staging.Balance = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.Staging.ReadOrders(gctx)
		if err != nil {
			return fmt.Errorf("read customer_orders: %w", err)
		}
		staging.Orders = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	state.Staging = staging
	return nil
}

// BuildBatchStep computes the batch and its summary.
type BuildBatchStep struct {
	Options Options
}

func (s *BuildBatchStep) Name() string { return "build_batch" }

func (s *BuildBatchStep) Execute(ctx context.Context, state *PipelineState) error {
	batch, summary, err := BuildBatch(ctx, state.RunID, state.Staging, state.Rules, s.Options)
	if err != nil {
		return err
	}
	state.Batch = batch
	state.Summary = summary
	return nil
}

// CommitBatchStep applies the batch atomically. Cancellation is honoured up
// to this point and no further.
type CommitBatchStep struct {
	Committer BatchCommitter
}

func (s *CommitBatchStep) Name() string { return "commit" }

func (s *CommitBatchStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Committer.CommitBatch(ctx, state.Batch)
}

// ArchiveStep copies the committed run to the archive. The data is already
// committed, so a failure here is logged and the run still succeeds.
type ArchiveStep struct {
	Archiver Archiver
}

func (s *ArchiveStep) Name() string { return "archive" }

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archiver == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.Archiver.ArchiveRun(ctx, state.Staging, state.Batch, state.Summary); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("run_id", state.RunID).Msg("archive failed")
	}
	return nil
}

// MarkSuccessStep marks the run as SUCCESS with its summary. Like ArchiveStep
// it runs after the commit, so a failure is only logged.
type MarkSuccessStep struct {
	Runs RunRepository
}

func (s *MarkSuccessStep) Name() string { return "mark_success" }

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.Runs.MarkRunSucceeded(ctx, state.RunID, state.Summary); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("run_id", state.RunID).Msg("failed to mark run succeeded")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
// The returned error is a *BatchError naming the failed step.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for _, step := range p.steps {
		log.Debug().Str("run_id", state.RunID).Str("step", step.Name()).Msg("executing step")
		if err := step.Execute(ctx, state); err != nil {
			return &BatchError{RunID: state.RunID, Step: step.Name(), Err: err}
		}
	}
	return nil
}

// NewBatchPipeline creates the standard batch run: start, load rules and
// staging, compute, commit, archive, mark success.
func NewBatchPipeline(store Store, archiver Archiver, opts Options) *Pipeline {
	return NewPipeline(
		&StartRunStep{Runs: store},
		&LoadRulesStep{Rules: store},
		&LoadStagingStep{Staging: store},
		&BuildBatchStep{Options: opts},
		&CommitBatchStep{Committer: store},
		&ArchiveStep{Archiver: archiver},
		&MarkSuccessStep{Runs: store},
	)
}
