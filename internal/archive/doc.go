// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package archive packages an encoded image and its metadata into a ZIP.
//
// Every archive holds exactly two entries at the root: image.jpg, stored
// uncompressed, and metadata.json, pretty-printed with two-space
// indentation. Open and Inspect read archives back for verification and
// for the inspect command.
package archive
