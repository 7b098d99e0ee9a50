// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the dataset store the export pipeline reads
// metadata from.
//
// A dataset (display set) is a group of structured instances, each carrying
// flat string attributes. The pipeline only ever reads; writes happen when
// datasets are imported.
//
// # Key Types
//
//   - Store: Read interface used by the metadata resolver
//   - MemoryStore: In-process store for sessions and tests
//   - SQLiteStore: Persistent store backed by modernc.org/sqlite
//
// # Usage
//
// Open the persistent store and import a dataset file:
//
//	store, err := storage.OpenSQLite(ctx, "~/.vpexport/datasets.db")
//	sets, err := storage.LoadDatasetFile("study.yaml")
//	err = store.Put(ctx, sets...)
//
// Resolve a display set:
//
//	ds, err := store.DisplaySet(ctx, uid)
//	if errors.Is(err, storage.ErrDisplaySetNotFound) {
//	    // unknown UID
//	}
package storage
