// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package viewport

import (
	"fmt"
	"sync"

	"github.com/jeranaias/vpexport/internal/model"
)

// Registry is the view of a viewport grid the export pipeline depends on.
type Registry interface {
	// ActiveViewportID returns the active viewport, false when none is.
	ActiveViewportID() (model.ViewportID, bool)
	// DisplaySetUIDs returns the display sets bound to a viewport. Only the
	// first entry is primary.
	DisplaySetUIDs(id model.ViewportID) []string
	// Element returns a handle to the surface mounted for a viewport.
	Element(id model.ViewportID) (Handle, bool)
}

// =============================================================================
// GRID
// =============================================================================

type slot struct {
	surface     *Surface
	displaySets []string
	generation  uint64
}

// Grid is a concurrency-safe Registry.
type Grid struct {
	mu         sync.RWMutex
	slots      map[model.ViewportID]*slot
	order      []model.ViewportID
	active     model.ViewportID
	generation uint64
}

// NewGrid creates an empty grid.
func NewGrid() *Grid {
	return &Grid{slots: make(map[model.ViewportID]*slot)}
}

// Mount places surface in viewport id with the given display sets. Mounting
// over an existing viewport replaces it; handles to the old surface go stale.
func (g *Grid) Mount(id model.ViewportID, surface *Surface, displaySetUIDs ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mountLocked(id, surface, displaySetUIDs)
}

func (g *Grid) mountLocked(id model.ViewportID, surface *Surface, displaySetUIDs []string) {
	if _, ok := g.slots[id]; !ok {
		g.order = append(g.order, id)
	}
	g.generation++
	if surface != nil && surface.ViewportID == "" {
		surface.ViewportID = id
	}
	g.slots[id] = &slot{
		surface:     surface,
		displaySets: append([]string(nil), displaySetUIDs...),
		generation:  g.generation,
	}
}

// Unmount removes a viewport. If it was active, no viewport is active.
func (g *Grid) Unmount(id model.ViewportID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unmountLocked(id)
}

func (g *Grid) unmountLocked(id model.ViewportID) {
	if _, ok := g.slots[id]; !ok {
		return
	}
	delete(g.slots, id)
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	if g.active == id {
		g.active = ""
	}
}

// SetActive makes id the active viewport.
func (g *Grid) SetActive(id model.ViewportID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.slots[id]; !ok {
		return fmt.Errorf("viewport %s is not mounted", id)
	}
	g.active = id
	return nil
}

// ClearActive leaves no viewport active.
func (g *Grid) ClearActive() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = ""
}

// ActiveViewportID implements Registry.
func (g *Grid) ActiveViewportID() (model.ViewportID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active, g.active != ""
}

// DisplaySetUIDs implements Registry.
func (g *Grid) DisplaySetUIDs(id model.ViewportID) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.slots[id]
	if !ok {
		return nil
	}
	return append([]string(nil), s.displaySets...)
}

// Element implements Registry. A viewport without a surface has no element.
func (g *Grid) Element(id model.ViewportID) (Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.slots[id]
	if !ok || s.surface == nil {
		return nil, false
	}
	return &gridHandle{grid: g, id: id, generation: s.generation}, true
}

// Viewports lists mounted viewports in mount order.
func (g *Grid) Viewports() []model.ViewportID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]model.ViewportID(nil), g.order...)
}

// gridHandle resolves only while the slot still holds the surface it was
// created for.
type gridHandle struct {
	grid       *Grid
	id         model.ViewportID
	generation uint64
}

func (h *gridHandle) ViewportID() model.ViewportID {
	return h.id
}

func (h *gridHandle) Resolve() (*Surface, bool) {
	h.grid.mu.RLock()
	defer h.grid.mu.RUnlock()
	s, ok := h.grid.slots[h.id]
	if !ok || s.generation != h.generation || s.surface == nil {
		return nil, false
	}
	return s.surface, true
}
