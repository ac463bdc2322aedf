// Package pipeline runs a full rebuild: load raw transactions, aggregate
// features, fit segments, merge and publish the canonical table.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/features"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/dvloznov/card-segments/internal/lookup"
	"github.com/dvloznov/card-segments/internal/merge"
	"github.com/dvloznov/card-segments/internal/metrics"
	"github.com/dvloznov/card-segments/internal/segmentation"
	"github.com/dvloznov/card-segments/internal/source"
	"github.com/dvloznov/card-segments/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result summarizes a successful run.
type Result struct {
	RunID        string                `json:"run_id"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
	Report       features.Report       `json:"report"`
	Stats        merge.Stats           `json:"stats"`
	Model        *segmentation.Model   `json:"model"`
	Records      int                   `json:"records"`
	Distribution []domain.SegmentCount `json:"distribution"`
	Location     string                `json:"location"`
	ExportError  string                `json:"export_error,omitempty"`
}

// Runner owns the collaborators of a rebuild. Runs are serialized.
type Runner struct {
	mu sync.Mutex

	source   source.Source
	store    storage.Store
	exporter Exporter
	lookup   *lookup.Service
	sets     features.CategorySets
	params   segmentation.Params
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithExporter adds a downstream copy of every published table.
func WithExporter(e Exporter) Option {
	return func(r *Runner) { r.exporter = e }
}

// WithLookup swaps the given service to each newly published table.
func WithLookup(s *lookup.Service) Option {
	return func(r *Runner) { r.lookup = s }
}

// WithMetrics records step and run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the run logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithCategorySets overrides the reference food/travel sets.
func WithCategorySets(sets features.CategorySets) Option {
	return func(r *Runner) { r.sets = sets }
}

// WithParams overrides the reference clustering parameters.
func WithParams(p segmentation.Params) Option {
	return func(r *Runner) { r.params = p }
}

// NewRunner creates a runner reading from src and publishing to store.
func NewRunner(src source.Source, store storage.Store, opts ...Option) *Runner {
	r := &Runner{
		source: src,
		store:  store,
		sets:   features.DefaultCategorySets(),
		params: segmentation.DefaultParams(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) steps() []PipelineStep {
	steps := []PipelineStep{
		&LoadTransactionsStep{Source: r.source},
		&AggregateStep{Sets: r.sets},
		&SegmentStep{Params: r.params},
		&MergeStep{},
		&PublishStep{Store: r.store},
	}
	if r.lookup != nil {
		steps = append(steps, &SwapStep{Lookup: r.lookup})
	}
	if r.exporter != nil {
		steps = append(steps, &ExportStep{Exporter: r.exporter})
	}
	return steps
}

// Run executes a full rebuild. On error nothing is published and the previous
// canonical table stays authoritative.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID := uuid.NewString()
	log := logger.WithRunID(r.log, runID)
	ctx = logger.WithContext(ctx, log)

	started := time.Now()
	log.Info().Str("source", r.source.Name()).Str("store", r.store.Location()).Msg("Starting rebuild")

	state := &PipelineState{RunID: runID}
	err := NewPipeline(r.metrics, r.steps()...).Execute(ctx, state)
	finished := time.Now()
	r.metrics.ObserveRun(err, len(state.Canonical), finished)
	if r.metrics != nil {
		r.metrics.RejectedRows.Add(float64(state.Report.Rejected))
		r.metrics.SkippedRows.Add(float64(state.SkippedNoAmount))
	}

	if err != nil {
		log.Error().Err(err).Dur("elapsed", finished.Sub(started)).Msg("Rebuild failed")
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.ModelInertia.Set(state.Model.Inertia)
	}

	res := &Result{
		RunID:        runID,
		StartedAt:    started,
		FinishedAt:   finished,
		Report:       state.Report,
		Stats:        state.Stats,
		Model:        state.Model,
		Records:      len(state.Canonical),
		Distribution: distribution(state),
		Location:     r.store.Location(),
	}
	if state.ExportErr != nil {
		res.ExportError = state.ExportErr.Error()
	}

	log.Info().
		Int("records", res.Records).
		Int("rejected", res.Report.Rejected).
		Int("skipped_no_amount", res.Report.SkippedNoAmount).
		Float64("inertia", res.Model.Inertia).
		Dur("elapsed", finished.Sub(started)).
		Msg("Rebuild completed")

	return res, nil
}

// BuildFeatures runs only the load and aggregate steps.
func (r *Runner) BuildFeatures(ctx context.Context) (domain.FeatureTable, features.Report, error) {
	ctx = logger.WithContext(ctx, r.log)
	state := &PipelineState{}
	err := NewPipeline(r.metrics,
		&LoadTransactionsStep{Source: r.source},
		&AggregateStep{Sets: r.sets},
	).Execute(ctx, state)
	return state.Features, state.Report, err
}

func distribution(state *PipelineState) []domain.SegmentCount {
	if state.Snapshot != nil {
		return state.Snapshot.Distribution()
	}
	return lookup.NewSnapshot(state.Canonical).Distribution()
}
