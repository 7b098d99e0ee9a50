// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/viewport"
)

// =============================================================================
// FIXTURES
// =============================================================================

type fakeExporter struct {
	calls atomic.Int32
	fn    func() model.ExportOutcome
}

func (f *fakeExporter) ExportViewport(ctx context.Context) model.ExportOutcome {
	f.calls.Add(1)
	return f.fn()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGrid() *viewport.Grid {
	g := viewport.NewGrid()
	g.Mount("vp-1", &viewport.Surface{Width: 4, Height: 4}, "ds-1")
	g.Mount("vp-2", nil, "ds-2")
	return g
}

func successExporter(t *testing.T) *fakeExporter {
	path := filepath.Join(t.TempDir(), "report_John Doe_20240101.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04archive"), 0644))
	return &fakeExporter{fn: func() model.ExportOutcome {
		return model.ExportOutcome{
			RunID:    "run-1",
			Filename: "report_John Doe_20240101.zip",
			Location: path,
			Size:     13,
			Digest:   "abc",
		}
	}}
}

func newTestServer(cfg Config, exp *fakeExporter, grid Grid) *httptest.Server {
	s := New(cfg, exp, grid, prometheus.NewRegistry(), quietLogger())
	return httptest.NewServer(s.Handler())
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// =============================================================================
// EXPORT ENDPOINTS
// =============================================================================

func TestServer_ExportSuccess(t *testing.T) {
	exp := successExporter(t)
	ts := newTestServer(Config{}, exp, newGrid())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/exports", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "/v1/exports/run-1", resp.Header.Get("Location"))
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var rec ExportRecord
	decode(t, resp, &rec)
	require.True(t, rec.Success)
	require.Equal(t, "report_John Doe_20240101.zip", rec.Filename)
	require.Equal(t, "/v1/exports/run-1/archive", rec.Archive)
	require.EqualValues(t, 1, exp.calls.Load())

	resp, err = http.Get(ts.URL + "/v1/exports/run-1/archive")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), `filename="report_John Doe_20240101.zip"`)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "PK\x03\x04archive", string(body))
}

func TestServer_ExportFailureStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"no active viewport", model.NewError(model.KindNoActiveViewport, "export", "No active viewport"), http.StatusConflict, model.KindNoActiveViewport.String()},
		{"surface not found", model.NewError(model.KindSurfaceNotFound, "export", "Viewport element not found for id: vp-2"), http.StatusNotFound, model.KindSurfaceNotFound.String()},
		{"no dataset", model.NewError(model.KindNoDatasetBound, "resolve", "no display set"), http.StatusUnprocessableEntity, model.KindNoDatasetBound.String()},
		{"encoding", model.NewError(model.KindEncodingFailed, "encode", "boom"), http.StatusInternalServerError, model.KindEncodingFailed.String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &fakeExporter{fn: func() model.ExportOutcome {
				return model.ExportOutcome{RunID: "run-x", Err: tt.err}
			}}
			ts := newTestServer(Config{}, exp, newGrid())
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/v1/exports", "application/json", nil)
			require.NoError(t, err)
			require.Equal(t, tt.status, resp.StatusCode)

			var rec ExportRecord
			decode(t, resp, &rec)
			require.False(t, rec.Success)
			require.Equal(t, tt.kind, rec.Kind)
			require.Equal(t, model.Message(tt.err), rec.Error)
			require.Empty(t, rec.Archive)

			resp, err = http.Get(ts.URL + "/v1/exports/run-x/archive")
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}

func TestServer_ArchiveGone(t *testing.T) {
	exp := successExporter(t)
	ts := newTestServer(Config{}, exp, newGrid())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/exports", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, os.Remove(exp.fn().Location))
	resp, err = http.Get(ts.URL + "/v1/exports/run-1/archive")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestServer_ListExportsNewestFirst(t *testing.T) {
	var n atomic.Int32
	exp := &fakeExporter{fn: func() model.ExportOutcome {
		id := n.Add(1)
		return model.ExportOutcome{RunID: "run-" + string(rune('0'+id)), Err: model.NewError(model.KindNoActiveViewport, "export", "No active viewport")}
	}}
	s := New(Config{History: 2}, exp, newGrid(), nil, quietLogger())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for range 3 {
		resp, err := http.Post(ts.URL+"/v1/exports", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/v1/exports")
	require.NoError(t, err)
	var body struct {
		Exports []ExportRecord `json:"exports"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Exports, 2)
	require.Equal(t, "run-3", body.Exports[0].RunID)
	require.Equal(t, "run-2", body.Exports[1].RunID)

	resp, err = http.Get(ts.URL + "/v1/exports/run-1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "metrics disabled without a gatherer")
}

// =============================================================================
// VIEWPORT ENDPOINTS
// =============================================================================

func TestServer_Viewports(t *testing.T) {
	grid := newGrid()
	ts := newTestServer(Config{}, successExporter(t), grid)
	defer ts.Close()

	put := func(body string) *http.Response {
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/v1/viewports/active", strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := put(`{"id":"vp-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Viewports []ViewportInfo `json:"viewports"`
	}
	decode(t, resp, &body)
	require.Equal(t, []ViewportInfo{
		{ID: "vp-1", Mounted: true, Active: true, DisplaySets: []string{"ds-1"}},
		{ID: "vp-2", Mounted: false, Active: false, DisplaySets: []string{"ds-2"}},
	}, body.Viewports)

	active, ok := grid.ActiveViewportID()
	require.True(t, ok)
	require.Equal(t, model.ViewportID("vp-1"), active)

	resp = put(`{"id":"vp-9"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = put(`not json`)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = put(`{"id":""}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok = grid.ActiveViewportID()
	require.False(t, ok)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "vpexport_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(Config{Version: "1.2.3"}, successExporter(t), newGrid(), reg, quietLogger())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health HealthResponse
	decode(t, resp, &health)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "1.2.3", health.Version)
	require.Equal(t, 2, health.Viewports)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(text), "vpexport_test_total 1")
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestServer_BearerToken(t *testing.T) {
	ts := newTestServer(Config{Token: "s3cret"}, successExporter(t), newGrid())
	defer ts.Close()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAuthMiddleware_AllowedIPs(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	tests := []struct {
		name    string
		allowed []string
		remote  string
		status  int
	}{
		{"single address", []string{"203.0.113.7"}, "203.0.113.7:5000", http.StatusOK},
		{"cidr", []string{"198.51.100.0/24"}, "198.51.100.20:5000", http.StatusOK},
		{"outside", []string{"198.51.100.0/24"}, "203.0.113.7:5000", http.StatusUnauthorized},
		{"invalid entries skipped", []string{"bogus", "203.0.113.7"}, "203.0.113.7:1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AuthMiddleware(NewAuthConfig("", tt.allowed, quietLogger()), quietLogger())(ok)
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestValidateBearerToken(t *testing.T) {
	require.True(t, ValidateBearerToken("a", "a"))
	require.False(t, ValidateBearerToken("a", "b"))
	require.False(t, ValidateBearerToken("", ""))
	require.False(t, ValidateBearerToken("a", ""))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("10.0.0.1"))
	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))
	require.True(t, rl.Allow("10.0.0.2"), "budgets are per client")
	require.Equal(t, 0, rl.Remaining("10.0.0.1"))
	require.Equal(t, 2, rl.Remaining("10.0.0.3"))

	now = now.Add(30 * time.Second)
	require.True(t, rl.Allow("10.0.0.1"), "one token refills every 30s")

	now = now.Add(idleLimiterTTL + time.Minute)
	rl.Allow("10.0.0.9")
	rl.mu.Lock()
	_, kept := rl.clients["10.0.0.2"]
	rl.mu.Unlock()
	require.False(t, kept, "idle clients are swept")
}

func TestRateLimitMiddleware(t *testing.T) {
	ts := newTestServer(Config{RequestsPerMinute: 1}, successExporter(t), newGrid())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"), mw("c"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.7:4000", "", "", "203.0.113.7"},
		{"untrusted proxy headers ignored", "203.0.113.7:4000", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy forwarded", "127.0.0.1:4000", "198.51.100.1, 10.0.0.1", "", "198.51.100.1"},
		{"invalid forwarded falls back", "10.1.1.1:4000", "not-an-ip", "", "10.1.1.1"},
		{"real ip", "192.168.1.2:4000", "", "198.51.100.9", "198.51.100.9"},
		{"no port", "203.0.113.7", "", "", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			require.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{}, successExporter(t), newGrid(), nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
