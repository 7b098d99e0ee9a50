// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/vpexport/internal/archive"
	"github.com/jeranaias/vpexport/internal/delivery"
	"github.com/jeranaias/vpexport/internal/encode"
	"github.com/jeranaias/vpexport/internal/metadata"
	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/notify"
	"github.com/jeranaias/vpexport/internal/storage"
	"github.com/jeranaias/vpexport/internal/telemetry"
	"github.com/jeranaias/vpexport/internal/viewport"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Capturer renders a mounted viewport.
type Capturer interface {
	Capture(ctx context.Context, h viewport.Handle) (*image.RGBA, error)
}

// Packager builds the archive.
type Packager interface {
	Package(ctx context.Context, img model.EncodedImage, md model.ExportMetadata) (*archive.Archive, error)
}

// MetadataResolver derives the metadata of a viewport.
type MetadataResolver interface {
	Resolve(ctx context.Context, id model.ViewportID) (model.ExportMetadata, error)
}

// EncodeFunc compresses a raster.
type EncodeFunc func(img image.Image, quality float64) (model.EncodedImage, error)

// Deps are the collaborators of an Exporter.
type Deps struct {
	Registry  viewport.Registry
	Store     storage.Store
	Capturer  Capturer
	Packager  Packager
	Deliverer delivery.Deliverer
	Sink      notify.Sink

	// Optional. Resolver defaults to a metadata.Resolver over Registry and
	// Store; Encode defaults to encode.Encode.
	Resolver MetadataResolver
	Encode   EncodeFunc
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Options tune an Exporter.
type Options struct {
	// Quality is the JPEG quality in [0, 1].
	Quality float64
	// Fields are the metadata fields written; empty means all.
	Fields []model.Field
	// Sentinel replaces missing attributes.
	Sentinel string
	// SanitizeFilenames restricts the archive name to safe characters.
	SanitizeFilenames bool
	// ConcurrentMetadata resolves metadata while capture and encoding run.
	ConcurrentMetadata bool
	// Observer, if set, is told about every state change.
	Observer StateObserver
}

// DefaultOptions returns maximal quality, all fields, the "N/A" sentinel,
// sanitized names and concurrent metadata resolution.
func DefaultOptions() Options {
	return Options{
		Quality:            encode.DefaultQuality,
		Sentinel:           model.SentinelNA,
		SanitizeFilenames:  true,
		ConcurrentMetadata: true,
	}
}

// =============================================================================
// EXPORTER
// =============================================================================

// Exporter runs exports. It holds no per-run state and is safe for
// concurrent use.
type Exporter struct {
	registry  viewport.Registry
	resolver  MetadataResolver
	capturer  Capturer
	encode    EncodeFunc
	packager  Packager
	deliverer delivery.Deliverer
	sink      notify.Sink
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	opts      Options
}

// New creates an Exporter.
func New(deps Deps, opts Options) (*Exporter, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("export: registry is required")
	case deps.Resolver == nil && deps.Store == nil:
		return nil, errors.New("export: store or resolver is required")
	case deps.Capturer == nil:
		return nil, errors.New("export: capturer is required")
	case deps.Packager == nil:
		return nil, errors.New("export: packager is required")
	case deps.Deliverer == nil:
		return nil, errors.New("export: deliverer is required")
	}
	if opts.Quality < 0 || opts.Quality > 1 {
		return nil, fmt.Errorf("export: quality %v is outside [0, 1]", opts.Quality)
	}

	if opts.Sentinel == "" {
		opts.Sentinel = model.SentinelNA
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = metadata.New(deps.Registry, deps.Store, opts.Fields, opts.Sentinel, logger)
	}
	enc := deps.Encode
	if enc == nil {
		enc = encode.Encode
	}
	sink := deps.Sink
	if sink == nil {
		sink = notify.NewLogSink(logger)
	}

	return &Exporter{
		registry:  deps.Registry,
		resolver:  resolver,
		capturer:  deps.Capturer,
		encode:    enc,
		packager:  deps.Packager,
		deliverer: deps.Deliverer,
		sink:      sink,
		metrics:   deps.Metrics,
		logger:    logger,
		opts:      opts,
	}, nil
}

// ExportViewport exports the active viewport. The outcome is reported to
// the sink; it is also returned for callers that want it. Once started a
// run is not interrupted by cancellation of ctx.
func (e *Exporter) ExportViewport(ctx context.Context) model.ExportOutcome {
	ctx = context.WithoutCancel(ctx)

	r := &run{
		Exporter: e,
		id:       uuid.NewString(),
		started:  time.Now(),
	}
	r.logger = e.logger.With("run", r.id)
	defer e.metrics.Started()()

	r.notify(ctx, model.Notification{Title: "Downloading..."})

	out := r.execute(ctx)
	e.metrics.RecordExport(out.Err)

	if out.Err != nil {
		r.settle(StateFailed)
		r.logger.Error("export failed",
			"viewport", r.viewport,
			"kind", model.KindOf(out.Err).String(),
			"error", out.Err,
			"elapsed", time.Since(r.started),
		)
		r.notify(ctx, model.Notification{
			Title:   "Export failed",
			Message: model.Message(out.Err),
			Type:    model.NotifyError,
		})
		return out
	}

	r.settle(StateSucceeded)
	e.metrics.RecordDelivered(out.Size)
	r.logger.Info("export complete",
		"viewport", r.viewport,
		"file", out.Location,
		"bytes", out.Size,
		"digest", out.Digest,
		"elapsed", time.Since(r.started),
	)
	r.notify(ctx, model.Notification{
		Title:   "Export complete",
		Message: "Downloaded " + out.Filename,
		Type:    model.NotifySuccess,
	})
	return out
}

// =============================================================================
// RUN
// =============================================================================

// run is the state of one ExportViewport call.
type run struct {
	*Exporter
	id       string
	started  time.Time
	viewport model.ViewportID
	logger   *slog.Logger
}

func (r *run) enter(s State) {
	r.logger.Debug("export state", "state", s.String())
	if r.opts.Observer != nil {
		r.opts.Observer(r.id, s)
	}
}

// settle enters a terminal state. The outcome is already decided, so an
// observer panic is logged and dropped.
func (r *run) settle(s State) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("state observer panicked", "state", s.String(), "panic", rec)
		}
	}()
	r.enter(s)
}

// execute runs every stage. A panic anywhere becomes UnexpectedError.
func (r *run) execute(ctx context.Context) (out model.ExportOutcome) {
	out.RunID = r.id
	defer func() {
		if rec := recover(); rec != nil {
			out = model.ExportOutcome{RunID: r.id, Err: panicError("export", rec)}
		}
	}()

	r.enter(StateResolving)
	id, ok := r.registry.ActiveViewportID()
	if !ok {
		out.Err = model.NewError(model.KindNoActiveViewport, "export", "No active viewport")
		return out
	}
	r.viewport = id

	handle, ok := r.registry.Element(id)
	if !ok {
		out.Err = model.NewError(model.KindSurfaceNotFound, "export",
			"Viewport element not found for id: %s", id)
		return out
	}

	img, md, err := r.produce(ctx, id, handle)
	if err != nil {
		out.Err = err
		return out
	}

	r.enter(StatePackaging)
	var arc *archive.Archive
	err = r.stage("package", func() error {
		var err error
		arc, err = r.packager.Package(ctx, img, md)
		return model.WrapError(model.KindPackagingFailed, "package", err)
	})
	if err != nil {
		out.Err = err
		return out
	}

	r.enter(StateDelivering)
	filename := delivery.ReportFilename(md, r.opts.Sentinel, r.opts.SanitizeFilenames)
	var location string
	err = r.stage("deliver", func() error {
		var err error
		location, err = r.deliverer.Deliver(ctx, arc.Bytes(), filename)
		return model.WrapError(model.KindDeliveryFailed, "deliver", err)
	})
	if err != nil {
		out.Err = err
		return out
	}

	out.Filename = filename
	out.Location = location
	out.Size = arc.Len()
	out.Digest = arc.Digest()
	return out
}

// produce captures and encodes the viewport and resolves its metadata.
// With ConcurrentMetadata the resolver runs beside the raster stages.
func (r *run) produce(ctx context.Context, id model.ViewportID, h viewport.Handle) (model.EncodedImage, model.ExportMetadata, error) {
	var img model.EncodedImage
	var md model.ExportMetadata

	if !r.opts.ConcurrentMetadata {
		var err error
		if img, err = r.raster(ctx, h); err != nil {
			return img, md, err
		}
		md, err = r.resolve(ctx, id)
		return img, md, err
	}

	var rasterErr, metaErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, rasterErr = r.raster(gctx, h)
		return rasterErr
	})
	g.Go(func() error {
		md, metaErr = r.resolve(gctx, id)
		return metaErr
	})
	g.Wait()

	if err := firstFailure(rasterErr, metaErr); err != nil {
		return model.EncodedImage{}, model.ExportMetadata{}, err
	}
	return img, md, nil
}

// raster runs capture then encoding. It may run on its own goroutine, so
// every observer call stays inside a recovered stage.
func (r *run) raster(ctx context.Context, h viewport.Handle) (model.EncodedImage, error) {
	var canvas *image.RGBA
	err := r.stage("capture", func() error {
		r.enter(StateCapturing)
		var err error
		canvas, err = r.capturer.Capture(ctx, h)
		return model.WrapError(model.KindCaptureFailed, "capture", err)
	})
	if err != nil {
		return model.EncodedImage{}, err
	}

	var img model.EncodedImage
	err = r.stage("encode", func() error {
		r.enter(StateEncoding)
		var err error
		img, err = r.encode(canvas, r.opts.Quality)
		return model.WrapError(model.KindEncodingFailed, "encode", err)
	})
	return img, err
}

func (r *run) resolve(ctx context.Context, id model.ViewportID) (model.ExportMetadata, error) {
	var md model.ExportMetadata
	err := r.stage("resolve", func() error {
		var err error
		md, err = r.resolver.Resolve(ctx, id)
		return model.WrapError(model.KindUnexpected, "resolve metadata", err)
	})
	return md, err
}

// stage times fn and turns a panic into UnexpectedError.
func (r *run) stage(name string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(name, rec)
		}
		r.metrics.ObserveStage(name, time.Since(start))
		if err != nil {
			r.logger.Debug("stage failed", "stage", name, "error", err)
		}
	}()
	return fn()
}

// notify shows n. The sink failing or panicking never affects the run.
func (r *run) notify(ctx context.Context, n model.Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("notification sink panicked", "title", n.Title, "panic", rec)
		}
	}()
	if err := r.sink.Show(ctx, n); err != nil {
		r.logger.Warn("notification failed", "title", n.Title, "error", err)
	}
}

// firstFailure picks the error to report, in stage order. Errors that are
// only a sibling's cancellation never mask the real cause.
func firstFailure(errs ...error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	return canceled
}

func panicError(op string, rec any) error {
	if err, ok := rec.(error); ok {
		return &model.ExportError{Kind: model.KindUnexpected, Op: op, Err: err}
	}
	return model.NewError(model.KindUnexpected, op, "%v", rec)
}
