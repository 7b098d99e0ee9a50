// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// SectionPrimary is the main toolbar section.
const SectionPrimary = "primary"

// ExportButtonID identifies the export button.
const ExportButtonID = "ExportViewport"

var (
	// ErrUnknownButton is returned when pressing an unregistered button.
	ErrUnknownButton = errors.New("unknown button")
	// ErrToolbarHidden is returned when pressing a button while the toolbar
	// is hidden.
	ErrToolbarHidden = errors.New("toolbar is hidden")
)

// Button is a toolbar entry bound to a command.
type Button struct {
	ID      string
	Label   string
	Tooltip string
	Icon    string
	Command string
}

// ExportButton returns the button that exports the current viewport.
func ExportButton() Button {
	return Button{
		ID:      ExportButtonID,
		Label:   "Export",
		Tooltip: "Export Current Viewport",
		Icon:    "Export",
		Command: ExportViewportCommand,
	}
}

// =============================================================================
// TOOLBAR
// =============================================================================

// Toolbar holds buttons and the sections that show them. Pressing a button
// runs its command on a new goroutine; Wait blocks until every dispatched
// command has returned.
type Toolbar struct {
	registry *Registry
	logger   *slog.Logger

	mu       sync.Mutex
	buttons  map[string]Button
	sections map[string][]string
	hidden   bool

	wg sync.WaitGroup

	// OnResult, if set, receives the result of every dispatched command.
	OnResult func(buttonID string, err error)
}

// NewToolbar creates a visible, empty toolbar dispatching into registry.
func NewToolbar(registry *Registry, logger *slog.Logger) *Toolbar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolbar{
		registry: registry,
		logger:   logger,
		buttons:  make(map[string]Button),
		sections: make(map[string][]string),
	}
}

// Register adds buttons, replacing any with the same id.
func (t *Toolbar) Register(buttons ...Button) error {
	for _, b := range buttons {
		if b.ID == "" {
			return errors.New("button has no id")
		}
		if b.Command == "" {
			return fmt.Errorf("button %q has no command", b.ID)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range buttons {
		t.buttons[b.ID] = b
	}
	return nil
}

// UpdateSection sets the buttons shown in section, in order.
func (t *Toolbar) UpdateSection(section string, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range ids {
		if _, ok := t.buttons[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownButton, id)
		}
	}
	t.sections[section] = append([]string(nil), ids...)
	return nil
}

// Section returns the buttons of section. A hidden toolbar shows none.
func (t *Toolbar) Section(section string) []Button {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hidden {
		return nil
	}
	ids := t.sections[section]
	out := make([]Button, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.buttons[id])
	}
	return out
}

// ButtonIDs returns the ids of every registered button.
func (t *Toolbar) ButtonIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.buttons))
	for id := range t.buttons {
		ids = append(ids, id)
	}
	return ids
}

// Show makes the toolbar visible.
func (t *Toolbar) Show() {
	t.mu.Lock()
	t.hidden = false
	t.mu.Unlock()
}

// Hide hides the toolbar. Commands already dispatched keep running.
func (t *Toolbar) Hide() {
	t.mu.Lock()
	t.hidden = true
	t.mu.Unlock()
}

// Hidden reports whether the toolbar is hidden.
func (t *Toolbar) Hidden() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hidden
}

// Press dispatches the command bound to button id and returns without
// waiting for it. Each press is independent of any other in flight.
func (t *Toolbar) Press(ctx context.Context, id string) error {
	t.mu.Lock()
	b, ok := t.buttons[id]
	hidden := t.hidden
	t.mu.Unlock()

	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrUnknownButton, id)
	case hidden:
		return ErrToolbarHidden
	}
	if t.registry.Get(b.Command) == nil {
		return fmt.Errorf("button %s: %w: %s", id, ErrUnknownCommand, b.Command)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		err := t.registry.Run(ctx, b.Command)
		if err != nil {
			t.logger.Debug("toolbar command finished with error", "button", id, "command", b.Command, "error", err)
		}
		if t.OnResult != nil {
			t.OnResult(id, err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched command has returned.
func (t *Toolbar) Wait() {
	t.wg.Wait()
}
