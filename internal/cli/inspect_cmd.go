// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/jeranaias/vpexport/internal/archive"
	"github.com/jeranaias/vpexport/internal/model"
)

// inspectEntry is the JSON shape of one archive entry.
type inspectEntry struct {
	Name           string `json:"name"`
	Method         string `json:"method"`
	CompressedSize uint64 `json:"compressed_size"`
	Size           uint64 `json:"size"`
}

// inspectResult is the JSON shape of 'vpexport inspect --json'.
type inspectResult struct {
	File     string               `json:"file"`
	Digest   string               `json:"digest"`
	Entries  []inspectEntry       `json:"entries"`
	Width    int                  `json:"width"`
	Height   int                  `json:"height"`
	Metadata model.ExportMetadata `json:"metadata"`
}

func runInspect(args []string, streams Streams) error {
	fs := newFlagSet("inspect", "vpexport inspect [--json] ARCHIVE", streams)
	jsonOut := fs.Bool("json", false, "output as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErrorf("inspect", "exactly one archive is required")
	}
	path := fs.Arg(0)

	contents, err := archive.Inspect(path)
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(contents.Image))
	if err != nil {
		return fmt.Errorf("decode %s: %w", archive.ImageEntry, err)
	}

	res := inspectResult{
		File:     filepath.Base(path),
		Digest:   contents.Digest,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Metadata: contents.Metadata,
	}
	for _, e := range contents.Entries {
		res.Entries = append(res.Entries, inspectEntry{
			Name:           e.Name,
			Method:         archive.MethodName(e.Method),
			CompressedSize: e.CompressedSize,
			Size:           e.UncompressedSize,
		})
	}

	if *jsonOut {
		return outputJSON(streams.Out, res)
	}

	color := colorsEnabled(streams.Out)
	summary, err := renderMarkdown(inspectMarkdown(res), color, terminalWidth(streams.Out))
	if err != nil {
		return err
	}
	fmt.Fprint(streams.Out, summary)
	fmt.Fprintln(streams.Out, highlightJSON(string(contents.MetadataJSON), color))
	return nil
}

// inspectMarkdown summarises an archive as markdown.
func inspectMarkdown(res inspectResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(res.File))
	fmt.Fprintf(&b, "Image: **%d x %d** JPEG\n\n", res.Width, res.Height)
	fmt.Fprintf(&b, "Digest: `%s`\n\n", res.Digest)
	b.WriteString("| Entry | Method | Stored | Size |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, e := range res.Entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			escapeMarkdown(e.Name), e.Method,
			byteSize(e.CompressedSize), byteSize(e.Size))
	}
	b.WriteString("\n## metadata.json\n")
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "|", `\|`, "#", `\#`, "[", `\[`, "]", `\]`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// renderMarkdown renders md for the terminal. Without color the notty
// style keeps the output free of escape sequences.
func renderMarkdown(md string, color bool, width int) (string, error) {
	opts := []glamour.TermRendererOption{
		glamour.WithStandardStyle("notty"),
		glamour.WithColorProfile(termenv.Ascii),
	}
	if color {
		opts = []glamour.TermRendererOption{glamour.WithAutoStyle()}
	}
	r, err := glamour.NewTermRenderer(append(opts, glamour.WithWordWrap(width))...)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// highlightJSON applies syntax highlighting to JSON. Plain text is
// returned when color is off or highlighting fails.
func highlightJSON(src string, color bool) string {
	if !color {
		return src
	}

	lexer := lexers.Get("json")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, src)
	if err != nil {
		return src
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return src
	}
	return buf.String()
}
