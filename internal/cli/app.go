// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeranaias/vpexport/internal/archive"
	"github.com/jeranaias/vpexport/internal/capture"
	"github.com/jeranaias/vpexport/internal/commands"
	"github.com/jeranaias/vpexport/internal/config"
	"github.com/jeranaias/vpexport/internal/delivery"
	"github.com/jeranaias/vpexport/internal/export"
	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/notify"
	"github.com/jeranaias/vpexport/internal/storage"
	"github.com/jeranaias/vpexport/internal/telemetry"
	"github.com/jeranaias/vpexport/internal/util"
	"github.com/jeranaias/vpexport/internal/viewport"
)

// appOptions select the inputs of an app.
type appOptions struct {
	// SessionPath is the viewport session file.
	SessionPath string
	// DatasetsPath, when set, serves display sets from a dataset file
	// instead of the sqlite store.
	DatasetsPath string
	Sink         notify.Sink
	Observer     export.StateObserver
	// OnOutcome receives the outcome of every export.
	OnOutcome func(model.ExportOutcome)
}

// app wires the export pipeline for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	grid     *viewport.Grid
	store    storage.Store
	gatherer *prometheus.Registry
	exporter *export.Exporter
	commands *commands.Registry
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		grid:     viewport.NewGrid(),
		gatherer: prometheus.NewRegistry(),
		commands: commands.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	sess, err := viewport.LoadSession(opts.SessionPath)
	if err != nil {
		return nil, err
	}
	sess.Apply(a.grid)

	if err := a.openStore(ctx, opts.DatasetsPath); err != nil {
		return nil, err
	}

	outDir, err := util.ExpandHome(cfg.Delivery.OutputDir)
	if err != nil {
		return nil, err
	}
	deliverer, err := delivery.NewFileDeliverer(outDir, cfg.Delivery.OpenAfterExport, logger)
	if err != nil {
		return nil, err
	}

	captureOpts := capture.DefaultOptions()
	captureOpts.FetchTimeout = cfg.Capture.FetchTimeout()
	captureOpts.FetchRate = cfg.Capture.FetchRate
	captureOpts.FetchBurst = cfg.Capture.FetchBurst
	captureOpts.MaxConcurrentFetches = cfg.Capture.MaxConcurrentFetches

	a.exporter, err = export.New(export.Deps{
		Registry:  a.grid,
		Store:     a.store,
		Capturer:  capture.New(captureOpts, logger),
		Packager:  archive.NewPackager(cfg.Archive.CompressMetadata),
		Deliverer: deliverer,
		Sink:      opts.Sink,
		Metrics:   telemetry.NewMetrics(a.gatherer),
		Logger:    logger,
	}, export.Options{
		Quality:            cfg.Export.Quality,
		Fields:             cfg.MetadataFields(),
		Sentinel:           cfg.Export.Sentinel,
		SanitizeFilenames:  cfg.Delivery.SanitizeFilenames,
		ConcurrentMetadata: cfg.Export.ConcurrentMetadata,
		Observer:           opts.Observer,
	})
	if err != nil {
		return nil, err
	}

	var onDone []func(model.ExportOutcome)
	if opts.OnOutcome != nil {
		onDone = append(onDone, opts.OnOutcome)
	}
	if err := a.commands.Register(commands.ExportCommand(a.exporter, onDone...)); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, datasetsPath string) error {
	if datasetsPath != "" {
		sets, err := storage.LoadDatasetFile(datasetsPath)
		if err != nil {
			return err
		}
		a.store = storage.NewMemoryStore(sets...)
		a.logger.Debug("serving display sets from file", "path", datasetsPath, "count", len(sets))
		return nil
	}

	dbPath, err := util.ExpandHome(a.cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open dataset store: %w", err)
	}
	a.store = db
	a.closers = append(a.closers, db.Close)
	return nil
}

// Close releases the store and writes the metrics textfile if one is
// configured.
func (a *app) Close() error {
	var errs []error
	if path := a.cfg.Metrics.Textfile; path != "" {
		if expanded, err := util.ExpandHome(path); err != nil {
			errs = append(errs, err)
		} else if err := telemetry.WriteTextfile(a.gatherer, expanded); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
