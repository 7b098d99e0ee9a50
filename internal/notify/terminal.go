// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/vpexport/internal/model"
)

// =============================================================================
// TOAST STYLING
// =============================================================================

// Toast colors adapt to light and dark terminals.
var (
	toastInfo    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	toastSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	toastError   = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	toastText    = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	toastMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
)

// Indicators keep the kind readable without color.
const (
	indicatorInfo    = "[i]"
	indicatorSuccess = "[OK]"
	indicatorError   = "[X]"
)

const (
	defaultToastWidth = 60
	minToastWidth     = 30
)

// TerminalSink renders notifications as bordered toasts.
type TerminalSink struct {
	mu       sync.Mutex
	w        io.Writer
	renderer *lipgloss.Renderer
	width    int
}

// NewTerminalSink creates a sink writing to w. Color and width come from
// the terminal when w is one; otherwise output is plain ASCII.
func NewTerminalSink(w io.Writer) *TerminalSink {
	renderer := lipgloss.NewRenderer(w)
	width := defaultToastWidth

	f, ok := w.(*os.File)
	if ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols-8 < width {
			width = cols - 8
		}
	} else {
		renderer.SetColorProfile(termenv.Ascii)
	}
	if width < minToastWidth {
		width = minToastWidth
	}

	return &TerminalSink{w: w, renderer: renderer, width: width}
}

// Show implements Sink.
func (s *TerminalSink) Show(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, s.render(n))
	return err
}

func (s *TerminalSink) render(n model.Notification) string {
	color, icon := toastInfo, indicatorInfo
	switch n.Type {
	case model.NotifySuccess:
		color, icon = toastSuccess, indicatorSuccess
	case model.NotifyError:
		color, icon = toastError, indicatorError
	}

	inner := s.width - 6
	iconStyle := s.renderer.NewStyle().Foreground(color).Bold(true)
	titleStyle := s.renderer.NewStyle().Foreground(toastText).Bold(true)
	messageStyle := s.renderer.NewStyle().Foreground(toastMuted)

	title := runewidth.Truncate(n.Title, inner-runewidth.StringWidth(icon)-1, "...")
	content := iconStyle.Render(icon) + " " + titleStyle.Render(title)
	if n.Message != "" {
		content += "\n" + messageStyle.Render(runewidth.Truncate(n.Message, inner, "..."))
	}

	box := s.renderer.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 2).
		MaxWidth(s.width)
	return box.Render(content)
}
