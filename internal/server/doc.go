// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the export pipeline over HTTP.
//
// # Endpoints
//
//   - POST /v1/exports               - Export the active viewport
//   - GET  /v1/exports               - Recent export runs, newest first
//   - GET  /v1/exports/{id}          - One export run
//   - GET  /v1/exports/{id}/archive  - Download the delivered archive
//   - GET  /v1/viewports             - List grid slots
//   - PUT  /v1/viewports/active      - Change the active viewport
//   - GET  /health                   - Health check
//   - GET  /metrics                  - Prometheus metrics
//
// # Security
//
//   - Bearer token authentication with constant-time comparison
//   - IP allowlist
//   - Per-client rate limiting
//   - Security headers
//
// # Usage
//
//	srv := server.New(server.Config{Addr: "127.0.0.1:8787"}, exporter, grid, registry, logger)
//	if err := srv.ListenAndServe(ctx); err != nil {
//		return err
//	}
package server
