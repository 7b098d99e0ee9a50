// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package viewport

import (
	"image"

	"github.com/jeranaias/vpexport/internal/model"
)

// Surface is the renderable content of a viewport: an ordered stack of
// layers drawn back to front onto a Width x Height canvas.
type Surface struct {
	ViewportID model.ViewportID
	// Origin is the origin the surface is rendered for, e.g.
	// "https://viewer.example.org". Sub-resources from other origins must
	// grant anonymous cross-origin access.
	Origin string
	Width  int
	Height int
	Layers []Layer
}

// Layer is one drawable element of a surface. Either Image is set (inline
// pixels) or Source names a sub-resource to load (file:, data:, http(s):).
type Layer struct {
	Name   string
	Source string
	Image  image.Image
	// Bounds is the destination rectangle in surface coordinates. An empty
	// rectangle covers the whole surface.
	Bounds image.Rectangle
}

// Destination returns the rectangle the layer is drawn into.
func (l Layer) Destination(s *Surface) image.Rectangle {
	if l.Bounds.Empty() {
		return image.Rect(0, 0, s.Width, s.Height)
	}
	return l.Bounds
}

// Handle references the surface mounted in a viewport at lookup time.
type Handle interface {
	ViewportID() model.ViewportID
	// Resolve returns the surface if it is still mounted.
	Resolve() (*Surface, bool)
}
