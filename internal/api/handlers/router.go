package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/trading-ingest/internal/api/middleware"
	"github.com/dvloznov/trading-ingest/internal/jobs"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

// Dependencies are what the API serves from.
type Dependencies struct {
	Store     pipeline.Store
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Log       zerolog.Logger
}

// NewRouter registers every endpoint and wraps the mux in the middleware chain.
func NewRouter(deps Dependencies) http.Handler {
	runs := NewRunsHandler(deps.Store, deps.Publisher, deps.Log)
	categories := NewCategoriesHandler(deps.Store, deps.Log)
	outputs := NewOutputsHandler(deps.Store, deps.Log)
	jobsHandler := NewJobsHandler(deps.JobStore, deps.Log)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/runs", runs.EnqueueRun)
	mux.HandleFunc("GET /api/runs", runs.ListRuns)

	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)

	mux.HandleFunc("GET /api/categories", categories.ListCategories)

	mux.HandleFunc("GET /api/rejections", outputs.ListRejections)
	mux.HandleFunc("GET /api/users", outputs.ListUsers)
	mux.HandleFunc("GET /api/balance", outputs.ListBalance)
	mux.HandleFunc("GET /api/orders", outputs.ListOrders)

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Chain(mux, deps.Log)
}
