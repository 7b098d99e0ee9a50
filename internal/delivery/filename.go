// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package delivery

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/vpexport/internal/model"
)

// maxComponentRunes bounds one filename component.
const maxComponentRunes = 80

// emptyComponent replaces a component that sanitizes to nothing.
const emptyComponent = "unnamed"

// Filename returns report_<PatientName>_<StudyDate>.zip with the values
// used verbatim.
func Filename(md model.ExportMetadata) string {
	return "report_" + md.PatientName + "_" + md.StudyDate + ".zip"
}

// ReportFilename is Filename with each component passed through
// SanitizeComponent when sanitize is set. A component holding the
// missing-attribute sentinel is written as model.SentinelUnknown when the
// sentinel itself cannot appear in a filename, so "N/A" never turns into a
// path or a mangled "N-A".
func ReportFilename(md model.ExportMetadata, sentinel string, sanitize bool) string {
	name := placeholder(md.PatientName, sentinel)
	date := placeholder(md.StudyDate, sentinel)
	if sanitize {
		name, date = SanitizeComponent(name), SanitizeComponent(date)
	}
	return Filename(model.ExportMetadata{PatientName: name, StudyDate: date})
}

func placeholder(v, sentinel string) string {
	if sentinel == "" || v != sentinel || SanitizeComponent(v) == v {
		return v
	}
	return model.SentinelUnknown
}

// SanitizeComponent makes s safe inside a filename. Letters, digits, space
// and "-_.^" are kept; path separators, reserved and control characters
// become "-". Leading dots and surrounding spaces are trimmed.
func SanitizeComponent(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n == maxComponentRunes {
			break
		}
		b.WriteRune(safeRune(r))
		n++
	}

	out := strings.TrimSpace(b.String())
	out = strings.TrimLeft(out, ".")
	out = strings.TrimSpace(out)
	// Windows drops trailing dots and spaces
	out = strings.TrimRight(out, ". ")
	if out == "" {
		return emptyComponent
	}
	return out
}

func safeRune(r rune) rune {
	switch {
	case r == ' ', r == '-', r == '_', r == '.', r == '^':
		return r
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
		return r
	}
	return '-'
}

// ValidFilename reports whether name can be written as a single file in a
// directory: non-empty, no separators, not "." or "..".
func ValidFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	for _, r := range name {
		if r == 0 {
			return false
		}
	}
	return true
}
