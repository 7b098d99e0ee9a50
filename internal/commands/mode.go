// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"log/slog"
	"sync/atomic"
)

// Mode is a set of toolbar buttons shown while the mode is entered.
type Mode struct {
	ID          string
	RouteName   string
	DisplayName string
	Buttons     []Button

	toolbar *Toolbar
	logger  *slog.Logger
	active  atomic.Bool
}

// NewExportMode returns the export mode, which shows the export button in
// the primary section.
func NewExportMode(toolbar *Toolbar, logger *slog.Logger) *Mode {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mode{
		ID:          "vpexport.mode.export",
		RouteName:   "export",
		DisplayName: "Export",
		Buttons:     []Button{ExportButton()},
		toolbar:     toolbar,
		logger:      logger,
	}
}

// OnEnter registers the mode's buttons and places them in the primary
// section.
func (m *Mode) OnEnter() error {
	if err := m.toolbar.Register(m.Buttons...); err != nil {
		return err
	}
	ids := make([]string, 0, len(m.Buttons))
	for _, b := range m.Buttons {
		ids = append(ids, b.ID)
	}
	if err := m.toolbar.UpdateSection(SectionPrimary, ids); err != nil {
		return err
	}
	m.toolbar.Show()
	m.active.Store(true)
	m.logger.Info("mode entered", "mode", m.RouteName)
	return nil
}

// OnExit hides the toolbar.
func (m *Mode) OnExit() {
	m.toolbar.Hide()
	m.active.Store(false)
	m.logger.Info("mode exited", "mode", m.RouteName)
}

// Active reports whether the mode is entered.
func (m *Mode) Active() bool {
	return m.active.Load()
}
