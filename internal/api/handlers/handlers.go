package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/card-segments/internal/api/middleware"
	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/jobs"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/dvloznov/card-segments/internal/lookup"
	"github.com/dvloznov/card-segments/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AccountResponse is a canonical record with its segment descriptor.
type AccountResponse struct {
	Account domain.Record     `json:"account"`
	Segment domain.Descriptor `json:"segment"`
}

// SegmentSummary is one row of the distribution endpoint.
type SegmentSummary struct {
	domain.Descriptor
	Count int `json:"count"`
}

// AccountsHandler handles account lookup endpoints.
type AccountsHandler struct {
	svc     *lookup.Service
	metrics *metrics.Metrics
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(svc *lookup.Service, m *metrics.Metrics) *AccountsHandler {
	return &AccountsHandler{svc: svc, metrics: m}
}

// GetAccount handles GET /api/accounts/{id}
func (h *AccountsHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.metrics.ObserveLookup("get", "invalid")
		middleware.WriteError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	rec, ok := h.svc.Get(id)
	if !ok {
		h.metrics.ObserveLookup("get", "miss")
		log := logger.FromContext(r.Context())
		log.Debug().Int64("account_id", id).Msg("Account not found")
		middleware.WriteError(w, http.StatusNotFound, "account not found")
		return
	}

	h.metrics.ObserveLookup("get", "hit")
	middleware.WriteJSON(w, http.StatusOK, AccountResponse{Account: rec, Segment: h.svc.Describe(rec.SegmentID)})
}

// RandomAccount handles GET /api/accounts/random
func (h *AccountsHandler) RandomAccount(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Sample()
	if err != nil {
		h.metrics.ObserveLookup("sample", "empty")
		middleware.WriteError(w, http.StatusNotFound, "no accounts loaded")
		return
	}

	h.metrics.ObserveLookup("sample", "hit")
	middleware.WriteJSON(w, http.StatusOK, AccountResponse{Account: rec, Segment: h.svc.Describe(rec.SegmentID)})
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ids := h.svc.AccountIDs()
	h.metrics.ObserveLookup("list", "hit")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_ids": ids,
		"count":       len(ids),
	})
}

// SegmentsHandler handles segment endpoints.
type SegmentsHandler struct {
	svc     *lookup.Service
	metrics *metrics.Metrics
}

// NewSegmentsHandler creates a new segments handler.
func NewSegmentsHandler(svc *lookup.Service, m *metrics.Metrics) *SegmentsHandler {
	return &SegmentsHandler{svc: svc, metrics: m}
}

// ListSegments handles GET /api/segments
func (h *SegmentsHandler) ListSegments(w http.ResponseWriter, r *http.Request) {
	dist := h.svc.Distribution()
	out := make([]SegmentSummary, len(dist))
	total := 0
	for i, c := range dist {
		out[i] = SegmentSummary{Descriptor: h.svc.Describe(c.SegmentID), Count: c.Count}
		total += c.Count
	}

	h.metrics.ObserveLookup("distribution", "hit")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"segments": out,
		"total":    total,
	})
}

// Catalog handles GET /api/segments/catalog
func (h *SegmentsHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	descriptors := h.svc.Catalog()
	h.metrics.ObserveLookup("catalog", "hit")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"segments": descriptors,
		"total":    len(descriptors),
	})
}

// GetSegment handles GET /api/segments/{id}
func (h *SegmentsHandler) GetSegment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid segment id")
		return
	}

	h.metrics.ObserveLookup("describe", "hit")
	middleware.WriteJSON(w, http.StatusOK, h.svc.Describe(id))
}

// RebuildHandler enqueues rebuild jobs.
type RebuildHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewRebuildHandler creates a new rebuild handler.
func NewRebuildHandler(publisher jobs.Publisher, log zerolog.Logger) *RebuildHandler {
	return &RebuildHandler{publisher: publisher, log: log}
}

// Rebuild handles POST /api/rebuild
func (h *RebuildHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}

	job := &jobs.RebuildJob{Reason: req.Reason}
	if err := h.publisher.PublishRebuild(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue rebuild")
		middleware.WriteError(w, http.StatusServiceUnavailable, "failed to enqueue rebuild")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("reason", job.Reason).Msg("Rebuild enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "failed to get job")
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
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(svc *lookup.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := svc.Snapshot()
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"time":      time.Now().Format(time.RFC3339),
			"accounts":  snap.Len(),
			"loaded_at": snap.LoadedAt().Format(time.RFC3339),
		})
	}
}
