package pipeline

import (
	"context"
	"fmt"
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
)

// PipelineStep represents a single step of a rebuild.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID           string
	Transactions    []domain.Transaction
	SkippedNoAmount int
	Features        domain.FeatureTable
	Report          features.Report
	Assignments     domain.AssignmentTable
	Model           *segmentation.Model
	Canonical       domain.CanonicalTable
	Stats           merge.Stats
	Snapshot        *lookup.Snapshot
	ExportErr       error
}

// LoadTransactionsStep reads the raw transaction table.
type LoadTransactionsStep struct {
	Source source.Source
}

func (s *LoadTransactionsStep) Name() string { return "load" }

func (s *LoadTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	batch, err := s.Source.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading from %s: %w", s.Source.Name(), err)
	}
	state.Transactions = batch.Transactions
	state.SkippedNoAmount = batch.SkippedNoAmount
	return nil
}

// AggregateStep reduces transactions into one feature vector per account.
type AggregateStep struct {
	Sets features.CategorySets
}

func (s *AggregateStep) Name() string { return "aggregate" }

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	table, report, err := features.Aggregate(ctx, state.Transactions, s.Sets)
	report.SkippedNoAmount = state.SkippedNoAmount
	state.Report = report
	if err != nil {
		return err
	}
	state.Features = table
	// Raw rows are not needed past this point.
	state.Transactions = nil
	return nil
}

// SegmentStep fits the clustering model and assigns segments.
type SegmentStep struct {
	Params segmentation.Params
}

func (s *SegmentStep) Name() string { return "segment" }

func (s *SegmentStep) Execute(ctx context.Context, state *PipelineState) error {
	assignments, model, err := segmentation.Fit(ctx, state.Features, s.Params)
	if err != nil {
		return err
	}
	state.Assignments = assignments
	state.Model = model
	return nil
}

// MergeStep joins features and assignments into the canonical table.
type MergeStep struct{}

func (s *MergeStep) Name() string { return "merge" }

func (s *MergeStep) Execute(ctx context.Context, state *PipelineState) error {
	table, stats := merge.Merge(state.Features, state.Assignments)
	state.Canonical = table
	state.Stats = stats
	if stats.DroppedFeatures > 0 || stats.DroppedAssignments > 0 || stats.Duplicates > 0 {
		log := logger.FromContext(ctx)
		log.Warn().Interface("stats", stats).Msg("Merge dropped rows")
	}
	return nil
}

// PublishStep replaces the stored canonical table.
type PublishStep struct {
	Store storage.Store
}

func (s *PublishStep) Name() string { return "publish" }

func (s *PublishStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Store.Save(ctx, state.Canonical); err != nil {
		return fmt.Errorf("saving to %s: %w", s.Store.Location(), err)
	}
	return nil
}

// SwapStep makes the new table visible to in-process lookups.
type SwapStep struct {
	Lookup *lookup.Service
}

func (s *SwapStep) Name() string { return "swap" }

func (s *SwapStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Snapshot = s.Lookup.Replace(state.Canonical)
	return nil
}

// Exporter copies the canonical table to a reporting destination.
type Exporter interface {
	Export(ctx context.Context, table domain.CanonicalTable) error
	Location() string
}

// ExportStep copies the published table downstream. The stored table is already
// authoritative, so a failure is recorded on the state instead of failing the run.
type ExportStep struct {
	Exporter Exporter
}

func (s *ExportStep) Name() string { return "export" }

func (s *ExportStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Exporter.Export(ctx, state.Canonical); err != nil {
		state.ExportErr = fmt.Errorf("exporting to %s: %w", s.Exporter.Location(), err)
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("destination", s.Exporter.Location()).Msg("Export failed")
	}
	return nil
}

// Pipeline runs steps in order and stops at the first failure.
type Pipeline struct {
	steps   []PipelineStep
	metrics *metrics.Metrics
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(m *metrics.Metrics, steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps, metrics: m}
}

// Execute runs all steps sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) not started: %w", i+1, step.Name(), err)
		}

		start := time.Now()
		err := step.Execute(ctx, state)
		elapsed := time.Since(start)
		p.metrics.ObserveStep(step.Name(), elapsed, err)

		if err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		log.Debug().Str("step", step.Name()).Dur("elapsed", elapsed).Msg("Step completed")
	}
	return nil
}
