// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package capture

import (
	"context"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/viewport"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures layer loading.
type Options struct {
	// FetchTimeout bounds each remote fetch. Zero means no timeout.
	FetchTimeout time.Duration
	// FetchRate is the sustained remote fetches per second. Zero disables
	// throttling.
	FetchRate  float64
	FetchBurst int
	// MaxConcurrentFetches bounds parallel layer loads within a capture.
	MaxConcurrentFetches int
	// Client overrides the HTTP client used for remote layers.
	Client *http.Client
}

// DefaultOptions returns the defaults used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		FetchTimeout:         30 * time.Second,
		FetchRate:            20,
		FetchBurst:           8,
		MaxConcurrentFetches: 4,
	}
}

// =============================================================================
// CAPTURER
// =============================================================================

// Capturer composes viewport surfaces into rasters.
type Capturer struct {
	loader        *Loader
	maxConcurrent int
	logger        *slog.Logger

	mu    sync.Mutex
	locks map[model.ViewportID]*viewportLock
}

// viewportLock is held or awaited by refs captures.
type viewportLock struct {
	slot chan struct{}
	refs int
}

// New creates a Capturer.
func New(opts Options, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConcurrentFetches < 1 {
		opts.MaxConcurrentFetches = 1
	}
	return &Capturer{
		loader:        NewLoader(opts.Client, opts.FetchRate, opts.FetchBurst, opts.FetchTimeout),
		maxConcurrent: opts.MaxConcurrentFetches,
		logger:        logger,
		locks:         make(map[model.ViewportID]*viewportLock),
	}
}

// Capture renders the surface behind h at scale 1. Two captures of the
// same viewport never overlap; the second waits for the first.
func (c *Capturer) Capture(ctx context.Context, h viewport.Handle) (*image.RGBA, error) {
	const op = "capture"

	unlock, err := c.lock(ctx, h.ViewportID())
	if err != nil {
		return nil, model.WrapError(model.KindCaptureFailed, op, err)
	}
	defer unlock()

	surface, ok := h.Resolve()
	if !ok {
		return nil, model.NewError(model.KindElementNotFound, op,
			"viewport %s is no longer mounted", h.ViewportID())
	}
	if surface.Width <= 0 || surface.Height <= 0 {
		return nil, model.NewError(model.KindCaptureFailed, op,
			"viewport %s has an empty surface (%dx%d)", h.ViewportID(), surface.Width, surface.Height)
	}

	layers, err := c.loadLayers(ctx, surface)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, surface.Width, surface.Height))
	for i, img := range layers {
		if img == nil {
			continue
		}
		dst := surface.Layers[i].Destination(surface)
		src := img.Bounds()
		if dst.Dx() == src.Dx() && dst.Dy() == src.Dy() {
			draw.Draw(canvas, dst, img, src.Min, draw.Over)
		} else {
			draw.CatmullRom.Scale(canvas, dst, img, src, draw.Over, nil)
		}
	}

	c.logger.Debug("viewport captured",
		"viewport", h.ViewportID(),
		"width", surface.Width,
		"height", surface.Height,
		"layers", len(surface.Layers),
	)
	return canvas, nil
}

// loadLayers loads every layer concurrently, keeping layer order.
func (c *Capturer) loadLayers(ctx context.Context, s *viewport.Surface) ([]image.Image, error) {
	images := make([]image.Image, len(s.Layers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for i, layer := range s.Layers {
		if layer.Image != nil {
			images[i] = layer.Image
			continue
		}
		if layer.Source == "" {
			continue
		}
		g.Go(func() error {
			img, err := c.loader.Load(gctx, layer.Source, s.Origin)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, model.WrapError(model.KindCaptureFailed, "capture", err)
	}
	return images, nil
}

// lock takes the per-viewport capture slot, giving up when ctx is done.
func (c *Capturer) lock(ctx context.Context, id model.ViewportID) (func(), error) {
	c.mu.Lock()
	vl, ok := c.locks[id]
	if !ok {
		vl = &viewportLock{slot: make(chan struct{}, 1)}
		c.locks[id] = vl
	}
	vl.refs++
	c.mu.Unlock()

	select {
	case vl.slot <- struct{}{}:
		return func() {
			<-vl.slot
			c.release(id, vl)
		}, nil
	case <-ctx.Done():
		c.release(id, vl)
		return nil, ctx.Err()
	}
}

// release drops the entry once no capture holds or waits on it.
func (c *Capturer) release(id model.ViewportID, vl *viewportLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vl.refs--
	if vl.refs == 0 && c.locks[id] == vl {
		delete(c.locks, id)
	}
}
