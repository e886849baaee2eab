package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeBatchRun represents one batch ingestion run.
	JobTypeBatchRun JobType = "batch_run"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// BatchRunJob requests one ingestion of the current staging contents.
type BatchRunJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// RequestedBy names who enqueued the run (API client, CLI user).
	RequestedBy string `json:"requested_by,omitempty"`

	// RunID is the pipeline run of the latest attempt.
	RunID string `json:"run_id,omitempty"`

	// Summary is set once an attempt commits.
	Summary *domain.Summary `json:"summary,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the latest attempt started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the latest attempt finished (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the latest attempt failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *BatchRunJob) GetID() string        { return j.JobID }
func (j *BatchRunJob) GetType() JobType     { return JobTypeBatchRun }
func (j *BatchRunJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues jobs.
type Publisher interface {
	// PublishBatchRun enqueues a batch run job.
	PublishBatchRun(ctx context.Context, job *BatchRunJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer processes queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error makes the job eligible for retry.
type JobHandler func(ctx context.Context, job *BatchRunJob) error

// JobStore keeps job state for status queries.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *BatchRunJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*BatchRunJob, error)

	// ListJobs retrieves jobs, newest first, with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*BatchRunJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
