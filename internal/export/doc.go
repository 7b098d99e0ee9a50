// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export runs the viewport export pipeline.
//
// An Exporter takes the active viewport, captures it, encodes the raster
// as JPEG, resolves the metadata of the displayed dataset, packages both
// into a ZIP and delivers it as report_<PatientName>_<StudyDate>.zip. The
// user is told when the export starts and how it ended through a
// notify.Sink.
//
// # Key Types
//
//   - Exporter: The pipeline, built from explicit dependencies
//   - Deps: Collaborators the pipeline calls
//   - Options: Quality, metadata fields and naming behavior
//   - State: Pipeline stage reported to a StateObserver
//
// # Usage
//
//	exp, err := export.New(export.Deps{
//	    Registry:  grid,
//	    Store:     store,
//	    Capturer:  capture.New(capture.DefaultOptions(), logger),
//	    Packager:  archive.NewPackager(true),
//	    Deliverer: deliverer,
//	    Sink:      notify.NewTerminalSink(os.Stderr),
//	    Logger:    logger,
//	}, export.DefaultOptions())
//
//	outcome := exp.ExportViewport(ctx)
//
// # Failure Handling
//
// The Exporter is the only place failures are handled. Every stage fails
// fast; the first failure ends the run with one error notification and
// one log record, and nothing is delivered. Runs are independent: two
// exports started together share no pipeline state.
package export
