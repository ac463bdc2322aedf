// Package app builds the runtime object graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/card-segments/internal/config"
	"github.com/dvloznov/card-segments/internal/domain"
	infraBQ "github.com/dvloznov/card-segments/internal/infra/bigquery"
	"github.com/dvloznov/card-segments/internal/jobs"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/dvloznov/card-segments/internal/lookup"
	"github.com/dvloznov/card-segments/internal/metrics"
	"github.com/dvloznov/card-segments/internal/pipeline"
	"github.com/dvloznov/card-segments/internal/segments"
	"github.com/dvloznov/card-segments/internal/source"
	"github.com/dvloznov/card-segments/internal/storage"
	"github.com/rs/zerolog"
)

// App holds the long-lived collaborators shared by the binaries.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Metrics *metrics.Metrics
	Lookup  *lookup.Service
	Store   storage.Store
	Runner  *pipeline.Runner

	closers []func() error
}

// NewLogger builds the zerolog logger described by cfg.
func NewLogger(cfg config.LogConfig) zerolog.Logger {
	return logger.NewWithOptions(logger.Options{Level: cfg.Level, Console: cfg.Console})
}

// New opens every configured backend. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
	}

	catalog, err := LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	a.Lookup = lookup.NewService(lookup.WithCatalog(catalog))

	src, err := a.openSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Store, err = a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLookup(a.Lookup),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithLogger(log),
		pipeline.WithCategorySets(cfg.CategorySets()),
		pipeline.WithParams(cfg.Params()),
	}
	if cfg.Export.Enabled {
		exp, err := a.openExporter(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, pipeline.WithExporter(exp))
	}

	a.Runner = pipeline.NewRunner(src, a.Store, opts...)
	return a, nil
}

// NewReadOnly opens only the store and catalog, for processes that serve
// lookups without rebuilding. Runner is nil.
func NewReadOnly(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
	}

	catalog, err := LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	a.Lookup = lookup.NewService(lookup.WithCatalog(catalog))

	a.Store, err = a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.LoadCurrent(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// LoadCatalog returns the configured descriptor catalog, checked against k.
func LoadCatalog(cfg *config.Config) (*segments.Catalog, error) {
	catalog := segments.Default()
	if cfg.Segments.CatalogPath != "" {
		var err error
		catalog, err = segments.LoadFile(cfg.Segments.CatalogPath)
		if err != nil {
			return nil, err
		}
	}
	if err := catalog.Validate(cfg.Model.K); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (a *App) openSource(ctx context.Context) (source.Source, error) {
	sc := a.Config.Source
	switch sc.Kind {
	case config.SourceParquet:
		return source.NewParquetSource(sc.Path, sc.Columns), nil
	case config.SourcePostgres:
		db, err := source.OpenPostgres(ctx, sc.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return source.NewPostgresSource(db, sc.Table, sc.Columns, sc.Timeout), nil
	case config.SourceBigQuery:
		repo, err := infraBQ.NewRepository(ctx, infraBQ.Dataset{ProjectID: sc.Project, DatasetID: sc.Dataset})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		return infraBQ.NewTransactionReader(repo, sc.Table, sc.Columns), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q: %w", sc.Kind, domain.ErrInvalidConfig)
	}
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	sc := a.Config.Store
	switch sc.Kind {
	case config.StoreFile:
		return storage.NewFileStore(sc.Path), nil
	case config.StoreGCS:
		store, err := storage.NewGCSStoreFromURI(ctx, sc.URI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q: %w", sc.Kind, domain.ErrInvalidConfig)
	}
}

func (a *App) openExporter(ctx context.Context) (pipeline.Exporter, error) {
	ec := a.Config.Export
	repo, err := infraBQ.NewRepository(ctx, infraBQ.Dataset{ProjectID: ec.Project, DatasetID: ec.Dataset})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, repo.Close)
	return infraBQ.NewCanonicalExporter(repo, ec.Table), nil
}

// LoadCurrent serves the stored canonical table, if one was published.
func (a *App) LoadCurrent(ctx context.Context) error {
	table, err := a.Store.Load(ctx)
	if errors.Is(err, storage.ErrNoSnapshot) {
		a.Log.Warn().Str("store", a.Store.Location()).Msg("No canonical table published yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("LoadCurrent: %w", err)
	}

	a.Lookup.Replace(table)
	a.Metrics.CanonicalRows.Set(float64(len(table)))
	a.Log.Info().Int("accounts", len(table)).Str("store", a.Store.Location()).Msg("Loaded canonical table")
	return nil
}

// RebuildHandler runs the pipeline for rebuild jobs. Failures caused by the
// input data are marked permanent.
func (a *App) RebuildHandler() jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		rj, ok := job.(*jobs.RebuildJob)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
		}

		log := a.Log.With().Str("job_id", rj.JobID).Logger()
		log.Info().Str("reason", rj.Reason).Int("attempt", rj.RetryCount+1).Msg("Processing rebuild job")

		res, err := a.Runner.Run(ctx)
		if err != nil {
			if isDataError(err) {
				return jobs.Permanent(err)
			}
			return err
		}

		rj.RunID = res.RunID
		rj.Accounts = res.Records
		log.Info().Str("run_id", res.RunID).Int("accounts", res.Records).Msg("Rebuild job completed")
		return nil
	}
}

func isDataError(err error) bool {
	for _, target := range []error{
		domain.ErrEmptyInput,
		domain.ErrInsufficientData,
		domain.ErrMissingValue,
		domain.ErrInvalidConfig,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Close releases every opened backend.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
