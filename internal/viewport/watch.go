// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package viewport

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 150 * time.Millisecond

// WatchSession reapplies the session file to grid whenever it changes,
// until ctx is done. The directory is watched rather than the file so
// editors that save by rename are followed. onReload, if set, is called
// after every reload attempt with its error.
func WatchSession(ctx context.Context, path string, grid *Grid, logger *slog.Logger, onReload func(error)) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(DefaultDebounce)
				} else {
					timer.Reset(DefaultDebounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				err := reload(abs, grid)
				if err != nil {
					// Keep the previous grid; a half-written file is common mid-save
					logger.Warn("session reload failed", "path", abs, "error", err)
				} else {
					logger.Info("session reloaded", "path", abs)
				}
				if onReload != nil {
					onReload(err)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("session watcher error", "error", err)
			}
		}
	}()

	return nil
}

func reload(path string, grid *Grid) error {
	sess, err := LoadSession(path)
	if err != nil {
		return err
	}
	sess.Apply(grid)
	return nil
}
