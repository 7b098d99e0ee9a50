// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// SHARED STYLES FOR ALL CLI COMMANDS
// =============================================================================

// styles holds the styles for one output stream. Colors are dropped when
// the stream is not a terminal or NO_COLOR is set.
type styles struct {
	width int

	// Title is used for command titles and headers (cyan)
	Title lipgloss.Style
	// Label is used for field labels (light gray, fixed width)
	Label lipgloss.Style
	// Value is used for regular values (off-white)
	Value lipgloss.Style
	// Success is used for success messages (green)
	Success lipgloss.Style
	// Error is used for errors and failures (red)
	Error lipgloss.Style
	// Warning is used for warnings (yellow/orange)
	Warning lipgloss.Style
	// Dim is used for secondary information and hints
	Dim lipgloss.Style
	// Separator is used for visual separators
	Separator lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(colorProfile(w))

	return styles{
		width:     terminalWidth(w),
		Title:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Label:     r.NewStyle().Foreground(lipgloss.Color("245")).Width(20),
		Value:     r.NewStyle().Foreground(lipgloss.Color("252")),
		Success:   r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		Error:     r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Warning:   r.NewStyle().Foreground(lipgloss.Color("214")),
		Dim:       r.NewStyle().Foreground(lipgloss.Color("242")),
		Separator: r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// separator renders a horizontal line adapted to the terminal width,
// capped at 70 columns.
func (s styles) separator() string {
	w := s.width - 4
	if w > 70 {
		w = 70
	}
	if w < 10 {
		w = 10
	}
	return s.Separator.Render(strings.Repeat("=", w))
}

// status renders a status indicator with appropriate color.
func (s styles) status(ok bool) string {
	if ok {
		return s.Success.Render("[OK]")
	}
	return s.Error.Render("[FAIL]")
}

// field renders a label/value row.
func (s styles) field(label, value string) string {
	return s.Label.Render(label) + s.Value.Render(value)
}
