// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metadata derives the export metadata for a viewport.
//
// The resolver reads the first instance of the first display set bound to
// the viewport. Every field is read through model.Attribute, so a missing
// or blank attribute becomes the configured sentinel instead of an error.
// Only a viewport without display sets, or a display set that cannot be
// found or has no instances, fails resolution.
package metadata
