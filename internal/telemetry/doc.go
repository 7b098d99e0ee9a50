// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry counts export outcomes and times each pipeline stage
// with Prometheus collectors.
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	metrics := telemetry.NewMetrics(reg)
//	metrics.ObserveStage("capture", time.Since(start))
//	metrics.RecordExport(err)
//
//	_ = telemetry.WriteTextfile(reg, "/var/lib/node_exporter/vpexport.prom")
//
// # Privacy
//
// Metrics carry no patient data: labels are limited to outcome, error
// kind and stage name.
package telemetry
