// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// elapsed renders d rounded for humans: "850ms", "2.4s", "1m3s".
func elapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// byteSize renders n in binary units, "13 B" or "1.2 KiB".
func byteSize(n uint64) string {
	return humanize.IBytes(n)
}

// outputJSON writes v indented. HTML characters in patient data are kept
// as is.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
