// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vpexport/internal/archive"
	"github.com/jeranaias/vpexport/internal/capture"
	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/notify"
	"github.com/jeranaias/vpexport/internal/storage"
	"github.com/jeranaias/vpexport/internal/telemetry"
	"github.com/jeranaias/vpexport/internal/viewport"
)

// =============================================================================
// FAKES
// =============================================================================

// memoryDeliverer keeps delivered archives by filename.
type memoryDeliverer struct {
	mu    sync.Mutex
	files map[string][]byte
	calls int
	err   error
}

func newMemoryDeliverer() *memoryDeliverer {
	return &memoryDeliverer{files: make(map[string][]byte)}
}

func (d *memoryDeliverer) Deliver(_ context.Context, blob []byte, filename string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	d.files[filename] = append([]byte(nil), blob...)
	return "mem://" + filename, nil
}

func (d *memoryDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type captureFunc func(ctx context.Context, h viewport.Handle) (*image.RGBA, error)

func (f captureFunc) Capture(ctx context.Context, h viewport.Handle) (*image.RGBA, error) {
	return f(ctx, h)
}

type packageFunc func(ctx context.Context, img model.EncodedImage, md model.ExportMetadata) (*archive.Archive, error)

func (f packageFunc) Package(ctx context.Context, img model.EncodedImage, md model.ExportMetadata) (*archive.Archive, error) {
	return f(ctx, img, md)
}

type resolverFunc func(ctx context.Context, id model.ViewportID) (model.ExportMetadata, error)

func (f resolverFunc) Resolve(ctx context.Context, id model.ViewportID) (model.ExportMetadata, error) {
	return f(ctx, id)
}

func solidSurface(w, h int) *viewport.Surface {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return &viewport.Surface{Width: w, Height: h, Layers: []viewport.Layer{{Name: "base", Image: img}}}
}

// fixture is a working pipeline: viewport vp-1 is active and shows
// display set ds-1 whose first instance is John Doe, 20240101.
type fixture struct {
	grid      *viewport.Grid
	store     *storage.MemoryStore
	deliverer *memoryDeliverer
	sink      *notify.Recorder
	deps      Deps
	opts      Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	grid := viewport.NewGrid()
	grid.Mount("vp-1", solidSurface(32, 16), "ds-1")
	require.NoError(t, grid.SetActive("vp-1"))

	store := storage.NewMemoryStore(model.DisplaySet{
		UID: "ds-1",
		Instances: []model.Instance{{Attributes: map[string]string{
			"PatientName": "John Doe",
			"StudyDate":   "20240101",
		}}},
	})

	f := &fixture{
		grid:      grid,
		store:     store,
		deliverer: newMemoryDeliverer(),
		sink:      notify.NewRecorder(),
		opts:      DefaultOptions(),
	}
	f.opts.Fields = model.RequiredFields
	f.deps = Deps{
		Registry:  grid,
		Store:     store,
		Capturer:  capture.New(capture.DefaultOptions(), nil),
		Packager:  archive.NewPackager(true),
		Deliverer: f.deliverer,
		Sink:      f.sink,
	}
	return f
}

func (f *fixture) exporter(t *testing.T) *Exporter {
	t.Helper()
	exp, err := New(f.deps, f.opts)
	require.NoError(t, err)
	return exp
}

func (f *fixture) errorNotifications() []model.Notification {
	var out []model.Notification
	for _, n := range f.sink.Notifications() {
		if n.Type == model.NotifyError {
			out = append(out, n)
		}
	}
	return out
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestExport_ScenarioA_Success(t *testing.T) {
	f := newFixture(t)

	out := f.exporter(t).ExportViewport(context.Background())
	require.NoError(t, out.Err)
	require.True(t, out.Succeeded())
	require.Equal(t, "report_John Doe_20240101.zip", out.Filename)
	require.Equal(t, "mem://report_John Doe_20240101.zip", out.Location)
	require.NotEmpty(t, out.RunID)
	require.Len(t, out.Digest, 64)

	blob := f.deliverer.files[out.Filename]
	require.Equal(t, out.Size, len(blob))

	c, err := archive.Open(blob)
	require.NoError(t, err)
	require.Len(t, c.Entries, 2)
	require.Equal(t, model.ExportMetadata{PatientName: "John Doe", StudyDate: "20240101"}, c.Metadata)
	decoded, err := jpeg.Decode(bytes.NewReader(c.Image))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 32, 16), decoded.Bounds())

	require.Equal(t, []model.Notification{
		{Title: "Downloading..."},
		{Title: "Export complete", Message: "Downloaded report_John Doe_20240101.zip", Type: model.NotifySuccess},
	}, f.sink.Notifications())
}

func TestExport_ScenarioB_NoActiveViewport(t *testing.T) {
	f := newFixture(t)
	f.grid.ClearActive()

	out := f.exporter(t).ExportViewport(context.Background())
	require.ErrorIs(t, out.Err, model.ErrNoActiveViewport)
	require.Zero(t, f.deliverer.count())

	errs := f.errorNotifications()
	require.Len(t, errs, 1)
	require.Equal(t, "Export failed", errs[0].Title)
	require.Equal(t, "No active viewport", errs[0].Message)
}

func TestExport_ScenarioC_TaintedCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("no CORS grant"))
	}))
	defer srv.Close()

	f := newFixture(t)
	f.grid.Mount("vp-1", &viewport.Surface{
		Origin: "https://viewer.example.org",
		Width:  8,
		Height: 8,
		Layers: []viewport.Layer{{Name: "overlay", Source: srv.URL + "/overlay.png"}},
	}, "ds-1")
	require.NoError(t, f.grid.SetActive("vp-1"))

	out := f.exporter(t).ExportViewport(context.Background())
	require.ErrorIs(t, out.Err, model.ErrCaptureFailed)
	require.Zero(t, f.deliverer.count())

	errs := f.errorNotifications()
	require.Len(t, errs, 1)
	require.Equal(t, model.Message(out.Err), errs[0].Message)
	require.Contains(t, errs[0].Message, "/overlay.png")
}

func TestExport_ScenarioD_MissingStudyDate(t *testing.T) {
	tests := []struct {
		name     string
		sanitize bool
		sentinel string
		wantFile string
	}{
		{"sanitized", true, model.SentinelNA, "report_John Doe_Unknown.zip"},
		{"raw filenames", false, model.SentinelNA, "report_John Doe_Unknown.zip"},
		{"unknown sentinel", true, model.SentinelUnknown, "report_John Doe_Unknown.zip"},
		{"custom sentinel", false, "missing", "report_John Doe_missing.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.opts.SanitizeFilenames = tt.sanitize
			f.opts.Sentinel = tt.sentinel
			f.store.Put(model.DisplaySet{UID: "ds-1", Instances: []model.Instance{
				{Attributes: map[string]string{"PatientName": "John Doe"}},
			}})

			out := f.exporter(t).ExportViewport(context.Background())
			require.NoError(t, out.Err)
			require.Equal(t, tt.wantFile, out.Filename)

			// metadata.json keeps the configured sentinel verbatim
			c, err := archive.Open(f.deliverer.files[out.Filename])
			require.NoError(t, err)
			require.Equal(t, tt.sentinel, c.Metadata.StudyDate)
		})
	}
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestExport_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		modify  func(f *fixture)
		want    error
		message string
	}{
		{
			name:   "no dataset bound",
			modify: func(f *fixture) { f.grid.Mount("vp-1", solidSurface(4, 4)); f.grid.SetActive("vp-1") },
			want:   model.ErrNoDatasetBound,
		},
		{
			name:   "dataset not found",
			modify: func(f *fixture) { f.store.Delete("ds-1") },
			want:   model.ErrDatasetNotFound,
		},
		{
			name:    "surface not found",
			modify:  func(f *fixture) { f.grid.Mount("vp-1", nil, "ds-1"); f.grid.SetActive("vp-1") },
			want:    model.ErrSurfaceNotFound,
			message: "Viewport element not found for id: vp-1",
		},
		{
			name: "element unmounted before capture",
			modify: func(f *fixture) {
				f.deps.Capturer = captureFunc(func(context.Context, viewport.Handle) (*image.RGBA, error) {
					return nil, model.NewError(model.KindElementNotFound, "capture", "gone")
				})
			},
			want: model.ErrElementNotFound,
		},
		{
			name: "encoding failed",
			modify: func(f *fixture) {
				f.deps.Encode = func(image.Image, float64) (model.EncodedImage, error) { return model.EncodedImage{}, boom }
			},
			want:    model.ErrEncodingFailed,
			message: "boom",
		},
		{
			name: "packaging failed",
			modify: func(f *fixture) {
				f.deps.Packager = packageFunc(func(context.Context, model.EncodedImage, model.ExportMetadata) (*archive.Archive, error) {
					return nil, boom
				})
			},
			want: model.ErrPackagingFailed,
		},
		{
			name:   "delivery failed",
			modify: func(f *fixture) { f.deliverer.err = boom },
			want:   model.ErrDeliveryFailed,
		},
		{
			name: "capture panics",
			modify: func(f *fixture) {
				f.deps.Capturer = captureFunc(func(context.Context, viewport.Handle) (*image.RGBA, error) {
					panic("renderer crashed")
				})
			},
			want:    model.ErrUnexpected,
			message: "renderer crashed",
		},
		{
			name: "error without message",
			modify: func(f *fixture) {
				f.deps.Encode = func(image.Image, float64) (model.EncodedImage, error) {
					return model.EncodedImage{}, errors.New("")
				}
			},
			want:    model.ErrEncodingFailed,
			message: model.FallbackMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.modify(f)

			out := f.exporter(t).ExportViewport(context.Background())
			require.ErrorIs(t, out.Err, tt.want)
			require.Empty(t, f.deliverer.files, "nothing may be delivered on failure")

			errs := f.errorNotifications()
			require.Len(t, errs, 1)
			require.Equal(t, "Export failed", errs[0].Title)
			if tt.message != "" {
				require.Equal(t, tt.message, errs[0].Message)
			}
		})
	}
}

func TestExport_CaptureFailureTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	f.deps.Capturer = captureFunc(func(context.Context, viewport.Handle) (*image.RGBA, error) {
		return nil, model.NewError(model.KindCaptureFailed, "capture", "tainted")
	})
	f.deps.Resolver = resolverFunc(func(context.Context, model.ViewportID) (model.ExportMetadata, error) {
		return model.ExportMetadata{}, model.NewError(model.KindDatasetNotFound, "resolve metadata", "gone")
	})

	out := f.exporter(t).ExportViewport(context.Background())
	require.ErrorIs(t, out.Err, model.ErrCaptureFailed)
}

func TestExport_MetadataFailureNotMaskedByCancellation(t *testing.T) {
	f := newFixture(t)
	f.deps.Capturer = captureFunc(func(ctx context.Context, _ viewport.Handle) (*image.RGBA, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f.store.Delete("ds-1")

	out := f.exporter(t).ExportViewport(context.Background())
	require.ErrorIs(t, out.Err, model.ErrDatasetNotFound)
}

func TestExport_SequentialMetadata(t *testing.T) {
	f := newFixture(t)
	f.opts.ConcurrentMetadata = false

	out := f.exporter(t).ExportViewport(context.Background())
	require.NoError(t, out.Err)
	require.Equal(t, "report_John Doe_20240101.zip", out.Filename)
}

func TestExport_CanceledContextStillCompletes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.exporter(t).ExportViewport(ctx)
	require.NoError(t, out.Err)
}

// =============================================================================
// NOTIFICATION AND STATE TESTS
// =============================================================================

func TestExport_SinkFailuresAreIgnored(t *testing.T) {
	tests := []struct {
		name string
		sink notify.Sink
	}{
		{"sink errors", notify.SinkFunc(func(context.Context, model.Notification) error { return errors.New("offline") })},
		{"sink panics", notify.SinkFunc(func(context.Context, model.Notification) error { panic("toast crashed") })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.deps.Sink = tt.sink

			out := f.exporter(t).ExportViewport(context.Background())
			require.NoError(t, out.Err)
			require.Equal(t, 1, f.deliverer.count())
		})
	}
}

func TestExport_StateTransitions(t *testing.T) {
	var mu sync.Mutex
	var states []State
	observe := func(_ string, s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}

	f := newFixture(t)
	f.opts.Observer = observe
	require.NoError(t, f.exporter(t).ExportViewport(context.Background()).Err)
	require.Equal(t, []State{
		StateResolving, StateCapturing, StateEncoding, StatePackaging, StateDelivering, StateSucceeded,
	}, states)

	states = nil
	f.grid.ClearActive()
	require.Error(t, f.exporter(t).ExportViewport(context.Background()).Err)
	require.Equal(t, []State{StateResolving, StateFailed}, states)
}

func TestExport_ObserverPanics(t *testing.T) {
	tests := []struct {
		name       string
		panicOn    State
		concurrent bool
		want       error
	}{
		{"while capturing beside metadata", StateCapturing, true, model.ErrUnexpected},
		{"while encoding", StateEncoding, false, model.ErrUnexpected},
		{"while packaging", StatePackaging, true, model.ErrUnexpected},
		{"after success", StateSucceeded, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.opts.ConcurrentMetadata = tt.concurrent
			f.opts.Observer = func(_ string, s State) {
				if s == tt.panicOn {
					panic("observer crashed")
				}
			}

			out := f.exporter(t).ExportViewport(context.Background())
			notes := f.sink.Notifications()
			require.NotEmpty(t, notes)
			last := notes[len(notes)-1]
			if tt.want == nil {
				require.NoError(t, out.Err)
				require.Equal(t, model.NotifySuccess, last.Type)
				return
			}
			require.ErrorIs(t, out.Err, tt.want)
			require.Equal(t, model.NotifyError, last.Type)
			require.Contains(t, last.Message, "observer crashed")
		})
	}
}

func TestState_String(t *testing.T) {
	require.Equal(t, "Packaging", StatePackaging.String())
	require.Equal(t, "State(42)", State(42).String())
	require.True(t, StateFailed.Terminal())
	require.False(t, StateDelivering.Terminal())
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestExport_ConcurrentRunsAreIndependent(t *testing.T) {
	f := newFixture(t)
	exp := f.exporter(t)

	const runs = 8
	outcomes := make([]model.ExportOutcome, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = exp.ExportViewport(context.Background())
		}()
	}
	wg.Wait()

	ids := make(map[string]bool)
	for _, out := range outcomes {
		require.NoError(t, out.Err)
		require.Equal(t, "report_John Doe_20240101.zip", out.Filename, "naming must be idempotent")
		ids[out.RunID] = true
	}
	require.Len(t, ids, runs, "each run gets its own id")
	require.Equal(t, runs, f.deliverer.count())
	require.Equal(t, 2*runs, f.sink.Len())
}

// =============================================================================
// CONSTRUCTION AND METRICS TESTS
// =============================================================================

func TestNew_RequiresDependencies(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		modify func(d *Deps, o *Options)
	}{
		{"registry", func(d *Deps, _ *Options) { d.Registry = nil }},
		{"store", func(d *Deps, _ *Options) { d.Store = nil }},
		{"capturer", func(d *Deps, _ *Options) { d.Capturer = nil }},
		{"packager", func(d *Deps, _ *Options) { d.Packager = nil }},
		{"deliverer", func(d *Deps, _ *Options) { d.Deliverer = nil }},
		{"quality", func(_ *Deps, o *Options) { o.Quality = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, opts := f.deps, f.opts
			tt.modify(&deps, &opts)
			_, err := New(deps, opts)
			require.Error(t, err)
		})
	}
}

func TestExport_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t)
	f.deps.Metrics = telemetry.NewMetrics(reg)
	exp := f.exporter(t)

	require.NoError(t, exp.ExportViewport(context.Background()).Err)
	f.grid.ClearActive()
	require.Error(t, exp.ExportViewport(context.Background()).Err)

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "vpexport_exports_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var outcome, kind string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "outcome":
					outcome = l.GetValue()
				case "kind":
					kind = l.GetValue()
				}
			}
			counts[outcome+"/"+kind] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, map[string]float64{
		"success/none":             1,
		"failure/NoActiveViewport": 1,
	}, counts)
}
