// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the vpexport command line.
//
// Each subcommand parses its own pflag set, loads the configuration and
// wires the export pipeline for the duration of the invocation.
//
// # Commands
//
//   - export: capture the active viewport of a session file once
//   - import: load display sets into the sqlite dataset store
//   - inspect: show the entries and metadata of a report archive
//   - interactive: line-editing session with the export toolbar; the
//     session file is reloaded whenever it changes
//   - version: build information
//
// export, inspect and version accept --json for scripted use. Exit codes
// distinguish usage (2), configuration (3), export (4) and missing-file (7)
// failures.
package cli
