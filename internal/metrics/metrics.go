// Package metrics provides Prometheus metrics for batch runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

var (
	// BatchRunsTotal tracks batch runs by final status
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trading_ingest",
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of batch runs by status",
		},
		[]string{"status"},
	)

	// BatchRunDuration tracks how long a batch run takes end to end
	BatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trading_ingest",
			Subsystem: "batch",
			Name:      "run_duration_seconds",
			Help:      "Duration of batch runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// RowsAccepted tracks rows written to the normalized tables
	RowsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trading_ingest",
			Subsystem: "rows",
			Name:      "accepted_total",
			Help:      "Total number of rows accepted into normalized tables",
		},
		[]string{"entity"},
	)

	// RowsRejected tracks excluded rows by rejection category
	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trading_ingest",
			Subsystem: "rows",
			Name:      "rejected_total",
			Help:      "Total number of rows rejected by category",
		},
		[]string{"category"},
	)

	// QueueJobsProcessed tracks batch-run jobs processed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trading_ingest",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"status"},
	)
)

// RecordRun records the outcome of one batch run. summary may be nil for failed runs.
func RecordRun(status domain.RunStatus, elapsed time.Duration, summary *domain.Summary) {
	BatchRunsTotal.WithLabelValues(string(status)).Inc()
	BatchRunDuration.Observe(elapsed.Seconds())

	if summary == nil {
		return
	}
	for entity, counts := range summary.Entities {
		RowsAccepted.WithLabelValues(string(entity)).Add(float64(counts.Accepted))
	}
	for category, n := range summary.Rejections {
		RowsRejected.WithLabelValues(category).Add(float64(n))
	}
}
