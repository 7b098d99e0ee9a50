// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Output widths used when a stream is not a terminal or is very narrow.
const (
	fallbackWidth = 80
	minWidth      = 40
)

// fdOf returns the descriptor behind w when w is an *os.File.
func fdOf(w any) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	return int(f.Fd()), true
}

// IsTTY reports whether stdin is a terminal. Line editing needs one.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func isTerminalWriter(w io.Writer) bool {
	fd, ok := fdOf(w)
	return ok && term.IsTerminal(fd)
}

// terminalWidth is the column count of w, clamped to minWidth.
func terminalWidth(w io.Writer) int {
	fd, ok := fdOf(w)
	if !ok {
		return fallbackWidth
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return max(width, minWidth)
}

// colorsEnabled decides whether w gets ANSI colour. NO_COLOR
// (https://no-color.org) beats FORCE_COLOR, which beats TTY detection.
func colorsEnabled(w io.Writer) bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return false
	case os.Getenv("FORCE_COLOR") != "":
		return true
	}
	return isTerminalWriter(w)
}

// colorProfile is the termenv profile styles render with on w.
func colorProfile(w io.Writer) termenv.Profile {
	if !colorsEnabled(w) {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}
