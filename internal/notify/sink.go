// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jeranaias/vpexport/internal/model"
)

// Sink shows notifications.
type Sink interface {
	Show(ctx context.Context, n model.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n model.Notification) error

// Show implements Sink.
func (f SinkFunc) Show(ctx context.Context, n model.Notification) error {
	return f(ctx, n)
}

// =============================================================================
// MULTI
// =============================================================================

// Multi shows every notification on all sinks. Every sink is tried; the
// errors are joined.
type Multi []Sink

// Show implements Sink.
func (m Multi) Show(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Show(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// LOG SINK
// =============================================================================

// LogSink writes notifications as log records. Errors log at warn level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Show implements Sink.
func (s *LogSink) Show(ctx context.Context, n model.Notification) error {
	level := slog.LevelInfo
	if n.Type == model.NotifyError {
		level = slog.LevelWarn
	}
	attrs := []any{"title", n.Title}
	if n.Message != "" {
		attrs = append(attrs, "message", n.Message)
	}
	if n.Type != model.NotifyInfo {
		attrs = append(attrs, "type", string(n.Type))
	}
	s.logger.Log(ctx, level, "notification", attrs...)
	return nil
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder keeps every notification it is shown, oldest first.
type Recorder struct {
	mu    sync.Mutex
	items []model.Notification
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Show implements Sink.
func (r *Recorder) Show(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return nil
}

// Notifications returns a copy of the history.
func (r *Recorder) Notifications() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.items...)
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Reset clears the history.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
