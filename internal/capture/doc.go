// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package capture renders the current contents of a viewport into a raster.
//
// A Capturer resolves a viewport.Handle, loads every layer of the mounted
// surface and composes them back to front onto a transparent canvas of the
// surface's size. Remote layers are fetched the way a browser loads images
// with crossOrigin="anonymous": no credentials are sent, and a cross-origin
// response that does not grant access taints the canvas, which fails the
// capture.
//
// # Key Types
//
//   - Capturer: Composes surfaces, one capture per viewport at a time
//   - Loader: Fetches and decodes layer sources (file:, data:, http(s):)
//   - Options: Fetch timeout, rate limit and concurrency
//
// # Usage
//
//	c := capture.New(capture.DefaultOptions(), logger)
//	raster, err := c.Capture(ctx, handle)
package capture
