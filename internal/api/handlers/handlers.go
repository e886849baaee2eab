package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/trading-ingest/internal/api/middleware"
	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/jobs"
	"github.com/dvloznov/trading-ingest/internal/logger"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

const defaultRunsLimit = 50

// RunsHandler handles batch run endpoints.
type RunsHandler struct {
	runs      pipeline.RunRepository
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs pipeline.RunRepository, publisher jobs.Publisher, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, publisher: publisher, log: log}
}

// EnqueueRun handles POST /api/runs. The body is optional.
func (h *RunsHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestedBy string `json:"requested_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	log := logger.FromContext(r.Context())

	job := &jobs.BatchRunJob{RequestedBy: req.RequestedBy}
	if err := h.publisher.PublishBatchRun(r.Context(), job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue batch run")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue batch run")
		return
	}

	log.Info().Str("job_id", job.JobID).Msg("Batch run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// ListRuns handles GET /api/runs?limit=N
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// CategoriesHandler serves the live rule snapshot.
type CategoriesHandler struct {
	repo pipeline.CategoryRuleRepository
	log  zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(repo pipeline.CategoryRuleRepository, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{repo: repo, log: log}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	rules, err := pipeline.LoadRuleSet(r.Context(), h.repo, pipeline.ValidatedCategories()...)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	categories := make(map[string][]string)
	for _, c := range pipeline.ValidatedCategories() {
		categories[c] = rules.AllowedValues(c)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// OutputsHandler serves the committed tables and the audit store.
type OutputsHandler struct {
	outputs pipeline.OutputReader
	log     zerolog.Logger
}

// NewOutputsHandler creates a new outputs handler.
func NewOutputsHandler(outputs pipeline.OutputReader, log zerolog.Logger) *OutputsHandler {
	return &OutputsHandler{outputs: outputs, log: log}
}

// ListRejections handles GET /api/rejections?category=unknown_traffic_source.
// Without a category every audit store is returned.
func (h *OutputsHandler) ListRejections(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	records, err := h.outputs.ListRejected(r.Context(), category)
	if err != nil {
		h.log.Error().Err(err).Str("category", category).Msg("Failed to list rejections")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list rejections")
		return
	}
	if records == nil {
		records = []domain.RejectedRecord{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rejections": records,
		"count":      len(records),
	})
}

// ListUsers handles GET /api/users
func (h *OutputsHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.outputs.ListUsers(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list users")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}

// ListBalance handles GET /api/balance
func (h *OutputsHandler) ListBalance(w http.ResponseWriter, r *http.Request) {
	entries, err := h.outputs.ListBalanceEntries(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list balance entries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list balance entries")
		return
	}
	if entries == nil {
		entries = []domain.BalanceEntry{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"balance": entries, "count": len(entries)})
}

// ListOrders handles GET /api/orders
func (h *OutputsHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.outputs.ListOrders(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list orders")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"orders": orders, "count": len(orders)})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Debug().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
