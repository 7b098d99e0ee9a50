// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package viewport tracks the rendering slots of a viewing session.
//
// A Grid maps viewport identifiers to the surface currently mounted in the
// slot and to the display sets shown there, and remembers which viewport is
// active. Sessions describe a grid on disk (YAML or JSON) and can be watched
// so the grid follows edits to the file.
//
// # Key Types
//
//   - Registry: What the export pipeline needs from a grid
//   - Grid: Concurrency-safe Registry implementation
//   - Surface / Layer: The renderable content of a viewport
//   - Handle: Reference to a mounted surface that goes stale on remount
//   - Session: On-disk description of a grid
//
// # Usage
//
//	grid := viewport.NewGrid()
//	grid.Mount("vp-1", surface, "1.2.840.1")
//	grid.SetActive("vp-1")
//
//	sess, err := viewport.LoadSession("session.yaml")
//	sess.Apply(grid)
package viewport
