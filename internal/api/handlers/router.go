package handlers

import (
	"net/http"

	"github.com/dvloznov/card-segments/internal/api/middleware"
	"github.com/dvloznov/card-segments/internal/jobs"
	"github.com/dvloznov/card-segments/internal/lookup"
	"github.com/dvloznov/card-segments/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Lookup    *lookup.Service
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	RateLimit float64
	RateBurst int
}

// NewRouter wires every route and the middleware chain.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS)
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	accounts := NewAccountsHandler(d.Lookup, d.Metrics)
	segments := NewSegmentsHandler(d.Lookup, d.Metrics)

	r.Get("/health", Health(d.Lookup))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(d.RateLimit, d.RateBurst))

		r.Get("/accounts", accounts.ListAccounts)
		r.Get("/accounts/random", accounts.RandomAccount)
		r.Get("/accounts/{id}", accounts.GetAccount)

		r.Get("/segments", segments.ListSegments)
		r.Get("/segments/catalog", segments.Catalog)
		r.Get("/segments/{id}", segments.GetSegment)

		if d.Publisher != nil {
			r.Post("/rebuild", NewRebuildHandler(d.Publisher, d.Log).Rebuild)
		}
		if d.JobStore != nil {
			jobsHandler := NewJobsHandler(d.JobStore, d.Log)
			r.Get("/jobs", jobsHandler.ListJobs)
			r.Get("/jobs/{id}", jobsHandler.GetJob)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
