// Package app assembles the pipeline, ledger and storage backends from
// configuration for the command line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/basket-export/internal/config"
	"github.com/dvloznov/basket-export/internal/export"
	"github.com/dvloznov/basket-export/internal/gcs"
	infraBQ "github.com/dvloznov/basket-export/internal/infra/bigquery"
	"github.com/dvloznov/basket-export/internal/ledger"
	"github.com/dvloznov/basket-export/internal/ledger/sqlite"
	"github.com/dvloznov/basket-export/internal/logger"
	"github.com/dvloznov/basket-export/internal/pipeline"
	"github.com/dvloznov/basket-export/internal/source"
)

// App holds the wired components of one process.
type App struct {
	Config    *config.Config
	Runner    *pipeline.Runner
	Ledger    ledger.Store
	Generator *export.Generator

	closers []io.Closer
}

// New validates cfg and builds every component it names. Callers must Close
// the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	log := logger.FromContext(ctx)
	a := &App{Config: cfg}

	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	store, err := a.openLedger()
	if err != nil {
		return fail(err)
	}
	a.Ledger = store

	var storage *gcs.GCSStorageService
	needStorage := gcs.IsURI(cfg.Output.Dir) || cfg.GCP.Bucket != "" ||
		(cfg.Input.Source == config.SourceFiles && gcs.IsURI(cfg.Input.Dir))
	if needStorage {
		storage, err = gcs.NewGCSStorageService(ctx)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, storage)
	}

	var repo *infraBQ.Repository
	if cfg.Input.Source == config.SourceBigQuery || cfg.GCP.PublishRows {
		repo, err = infraBQ.NewRepository(ctx, cfg.GCP.ProjectID, cfg.GCP.Dataset)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, repo)
	}

	var src pipeline.Source
	switch cfg.Input.Source {
	case config.SourceBigQuery:
		src = repo
	default:
		var fs *source.FileSource
		if storage != nil {
			fs, err = source.Open(cfg.Input.Dir, storage)
		} else {
			fs, err = source.Open(cfg.Input.Dir, nil)
		}
		if err != nil {
			return fail(err)
		}
		src = fs
	}

	sink, location, err := newSink(cfg, storage)
	if err != nil {
		return fail(err)
	}

	format, err := export.ParseFormat(cfg.Pipeline.Format)
	if err != nil {
		return fail(err)
	}
	a.Generator = export.NewGenerator(store, sink, export.WithFormat(format))

	loc, err := cfg.Pipeline.Location()
	if err != nil {
		return fail(err)
	}
	opts := pipeline.Options{
		ContractVersion: cfg.Pipeline.ContractVersion,
		TieBreak:        cfg.Pipeline.TieBreak,
		Delimiter:       cfg.Pipeline.Delimiter,
		Location:        loc,
		Workers:         cfg.Pipeline.Workers,
	}
	if cfg.GCP.PublishRows {
		opts.Publisher = repo
	}
	a.Runner, err = pipeline.NewRunner(src, a.Generator, opts)
	if err != nil {
		return fail(err)
	}

	log.Info().
		Str("source", cfg.Input.Source).
		Str("input", cfg.Input.Dir).
		Str("artifacts", location).
		Str("ledger", ledgerName(cfg)).
		Str("format", string(format)).
		Bool("publish_rows", cfg.GCP.PublishRows).
		Msg("Export pipeline configured")
	return a, nil
}

func (a *App) openLedger() (ledger.Store, error) {
	if a.Config.Output.LedgerPath == "" {
		return ledger.NewMemoryStore(), nil
	}
	store, err := sqlite.Open(a.Config.Output.LedgerPath)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newSink(cfg *config.Config, storage gcs.StorageService) (export.Sink, string, error) {
	prefix := cfg.Output.Dir
	if cfg.GCP.Bucket != "" {
		prefix = "gs://" + cfg.GCP.Bucket + "/exports"
	}
	if !gcs.IsURI(prefix) {
		return export.FileSink{Dir: prefix}, prefix, nil
	}
	sink, err := gcs.NewSink(storage, prefix)
	if err != nil {
		return nil, "", err
	}
	return sink, prefix, nil
}

func ledgerName(cfg *config.Config) string {
	if cfg.Output.LedgerPath == "" {
		return "memory"
	}
	return cfg.Output.LedgerPath
}

// Close releases every backend in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	if a.Ledger != nil {
		errs = append(errs, a.Ledger.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
