// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for vpexport.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ExportConfig: JPEG quality, metadata fields and sentinel
//   - CaptureConfig: Sub-resource fetch limits
//   - DeliveryConfig: Output directory and filename sanitization
//   - ServerConfig: Listen address, bearer token and rate limit for serve
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (VPEXPORT_*)
//   - ~/.vpexport/config.toml
//   - ~/.vpexport/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	quality := cfg.Export.Quality
//	fields := cfg.MetadataFields()
package config
