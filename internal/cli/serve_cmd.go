// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/vpexport/internal/notify"
	"github.com/jeranaias/vpexport/internal/server"
	"github.com/jeranaias/vpexport/internal/viewport"
)

// runServe serves the export pipeline over HTTP until ctx is done.
func runServe(ctx context.Context, args []string, streams Streams) error {
	fs := newFlagSet("serve", "vpexport serve --session FILE [flags]", streams)
	var f exportFlags
	f.register(fs)
	addr := fs.String("addr", "", "listen address (default from config, 127.0.0.1:8787)")
	noWatch := fs.Bool("no-watch", false, "do not reload the session file when it changes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if f.session == "" {
		return usageErrorf("serve", "--session is required")
	}

	cfg, err := f.config(fs, streams)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger := newLogger(cfg.Log.Level, streams.Err)

	a, err := newApp(ctx, cfg, logger, appOptions{
		SessionPath:  f.session,
		DatasetsPath: f.datasets,
		Sink:         notify.NewLogSink(logger),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("cleanup failed", "error", cerr)
		}
	}()

	if !*noWatch {
		if err := viewport.WatchSession(ctx, f.session, a.grid, logger, nil); err != nil {
			logger.Warn("session watch unavailable", "error", err)
		}
	}

	if cfg.Server.Token == "" {
		logger.Warn("serving without a bearer token", "addr", cfg.Server.Addr)
	}
	srv := server.New(server.Config{
		Addr:              cfg.Server.Addr,
		Token:             cfg.Server.Token,
		AllowedIPs:        cfg.Server.AllowedIPs,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		Version:           Version,
	}, a.exporter, a.grid, a.gatherer, logger)

	fmt.Fprintf(streams.Out, "Serving exports on http://%s (Ctrl+C to stop)\n", cfg.Server.Addr)
	return srv.ListenAndServe(ctx)
}
