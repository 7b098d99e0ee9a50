// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify delivers user-facing notifications.
//
// A Sink shows one notification. Exports emit "Downloading..." when they
// start and one success or error notification when they finish. Sinks may
// be called from several exports at once and must be safe for concurrent
// use.
//
// # Key Types
//
//   - Sink: Anything that can show a notification
//   - TerminalSink: Toast-style rendering on a terminal
//   - LogSink: Structured log records
//   - Recorder: In-memory history
//   - Multi: Fan-out to several sinks
package notify
