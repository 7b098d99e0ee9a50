// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/storage"
)

// runImport loads dataset files into the sqlite store. Display sets that
// already exist are replaced.
func runImport(ctx context.Context, args []string, streams Streams) error {
	fs := newFlagSet("import", "vpexport import [flags] FILE...", streams)
	configPath := fs.String("config", "", "config file (default ~/.vpexport/config.toml)")
	database := fs.String("database", "", "dataset database (overrides storage.database_path)")
	list := fs.Bool("list", false, "list the display sets in the store after importing")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 && !*list {
		return usageErrorf("import", "at least one dataset file is required")
	}

	cfg, err := loadConfig(*configPath, streams)
	if err != nil {
		return err
	}
	if fs.Changed("database") {
		cfg.Storage.DatabasePath = *database
	}
	logger := newLogger(cfg.Log.Level, streams.Err)

	// Parse every file before touching the store so a bad file imports
	// nothing.
	type batch struct {
		path string
		sets []model.DisplaySet
	}
	batches := make([]batch, 0, fs.NArg())
	for _, path := range fs.Args() {
		sets, err := storage.LoadDatasetFile(path)
		if err != nil {
			return err
		}
		batches = append(batches, batch{path: path, sets: sets})
	}

	store, err := storage.OpenSQLite(ctx, cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open dataset store: %w", err)
	}
	defer store.Close()

	var total int
	for _, b := range batches {
		if err := store.Put(ctx, b.sets...); err != nil {
			return fmt.Errorf("import %s: %w", b.path, err)
		}
		total += len(b.sets)
		logger.Info("imported display sets", "file", b.path, "count", len(b.sets))
	}

	st := newStyles(streams.Out)
	if fs.NArg() > 0 {
		fmt.Fprintf(streams.Out, "%s Imported %d display set(s) from %d file(s) into %s\n",
			st.status(true), total, len(batches), store.Path())
	}

	if *list {
		uids, err := store.List(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(streams.Out, st.Title.Render("Display sets"))
		for _, uid := range uids {
			fmt.Fprintln(streams.Out, "  "+uid)
		}
	}
	return nil
}
