// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package viewport

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/vpexport/internal/model"
)

// =============================================================================
// SESSION FILES
// =============================================================================

// Session is the on-disk description of a viewport grid.
type Session struct {
	// Active is the viewport that starts active. Empty means none.
	Active string `json:"active" yaml:"active"`
	// Origin applies to every surface that does not set its own.
	Origin    string            `json:"origin" yaml:"origin"`
	Viewports []SessionViewport `json:"viewports" yaml:"viewports"`

	// dir resolves relative layer paths.
	dir string
}

// SessionViewport describes one slot.
type SessionViewport struct {
	ID          string         `json:"id" yaml:"id"`
	DisplaySets []string       `json:"display_sets" yaml:"display_sets"`
	Origin      string         `json:"origin,omitempty" yaml:"origin,omitempty"`
	Width       int            `json:"width" yaml:"width"`
	Height      int            `json:"height" yaml:"height"`
	Layers      []SessionLayer `json:"layers" yaml:"layers"`
	// Unmounted viewports keep their display sets but have no element.
	Unmounted bool `json:"unmounted,omitempty" yaml:"unmounted,omitempty"`
}

// SessionLayer describes one layer; omitted width/height cover the surface.
type SessionLayer struct {
	Name   string `json:"name" yaml:"name"`
	Src    string `json:"src" yaml:"src"`
	X      int    `json:"x" yaml:"x"`
	Y      int    `json:"y" yaml:"y"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// LoadSession reads a YAML or JSON session file.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	sess, err := ParseSession(data, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	sess.dir = abs
	return sess, nil
}

// ParseSession decodes and validates session content.
func ParseSession(data []byte, isYAML bool) (*Session, error) {
	var sess Session
	var err error
	if isYAML {
		err = yaml.Unmarshal(data, &sess)
	} else {
		err = json.Unmarshal(data, &sess)
	}
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Validate checks ids, sizes and the active reference.
func (s *Session) Validate() error {
	seen := make(map[string]bool)
	for i, vp := range s.Viewports {
		if vp.ID == "" {
			return fmt.Errorf("viewport %d has no id", i)
		}
		if seen[vp.ID] {
			return fmt.Errorf("duplicate viewport id %q", vp.ID)
		}
		seen[vp.ID] = true
		if vp.Width <= 0 || vp.Height <= 0 {
			if !vp.Unmounted {
				return fmt.Errorf("viewport %q has invalid size %dx%d", vp.ID, vp.Width, vp.Height)
			}
		}
		for j, l := range vp.Layers {
			if l.Src == "" {
				return fmt.Errorf("viewport %q layer %d has no src", vp.ID, j)
			}
		}
	}
	if s.Active != "" && !seen[s.Active] {
		return fmt.Errorf("active viewport %q is not defined", s.Active)
	}
	return nil
}

// Apply replaces the grid's contents with the session. The active viewport
// is taken from the session.
func (s *Session) Apply(g *Grid) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range append([]model.ViewportID(nil), g.order...) {
		g.unmountLocked(id)
	}

	for _, vp := range s.Viewports {
		id := model.ViewportID(vp.ID)
		var surface *Surface
		if !vp.Unmounted {
			surface = s.surface(vp)
		}
		g.mountLocked(id, surface, vp.DisplaySets)
	}

	g.active = model.ViewportID(s.Active)
}

func (s *Session) surface(vp SessionViewport) *Surface {
	origin := vp.Origin
	if origin == "" {
		origin = s.Origin
	}
	surface := &Surface{
		ViewportID: model.ViewportID(vp.ID),
		Origin:     origin,
		Width:      vp.Width,
		Height:     vp.Height,
		Layers:     make([]Layer, 0, len(vp.Layers)),
	}
	for _, l := range vp.Layers {
		layer := Layer{Name: l.Name, Source: s.resolveSource(l.Src)}
		if l.Width > 0 && l.Height > 0 {
			layer.Bounds = image.Rect(l.X, l.Y, l.X+l.Width, l.Y+l.Height)
		}
		surface.Layers = append(surface.Layers, layer)
	}
	return surface
}

// resolveSource makes relative file paths absolute against the session
// directory. URLs are left untouched.
func (s *Session) resolveSource(src string) string {
	if strings.Contains(src, ":") && !filepath.IsAbs(src) && !isWindowsDrive(src) {
		return src
	}
	if filepath.IsAbs(src) || s.dir == "" {
		return src
	}
	return filepath.Join(s.dir, src)
}

func isWindowsDrive(src string) bool {
	return len(src) > 2 && src[1] == ':' && (src[2] == '\\' || src[2] == '/')
}
