// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the export pipeline.
//
// This package defines the domain types passed between the pipeline stages:
// the viewport and dataset references the pipeline borrows from its host,
// the metadata record written into every archive, the notifications shown
// to the user and the error taxonomy every stage reports failures with.
//
// # Key Types
//
//   - ViewportID: Opaque identifier of a rendering slot
//   - DisplaySet / Instance: A resolved dataset and its structured records
//   - ExportMetadata: Fixed-shape record serialized as metadata.json
//   - EncodedImage: Compressed raster produced by the encoder
//   - Notification: Transient status message for the notification sink
//   - ExportOutcome: Terminal result of one export run
//   - ExportError / ErrorKind: Classified pipeline failure
//
// # Usage
//
// Read attributes with a fallback, never by indexing the map directly:
//
//	name := inst.Attribute("PatientName", model.SentinelNA)
//
// Classify a failure:
//
//	if model.KindOf(err) == model.KindNoDatasetBound {
//	    // nothing is bound to the viewport
//	}
package model
