// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jeranaias/vpexport/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usageText = `vpexport - export a medical image viewport as a report archive

Each export captures the active viewport, reads the patient and study
attributes of its first display set, and writes
report_<PatientName>_<StudyDate>.zip containing image.jpg and metadata.json.

Usage:
  vpexport export --session FILE [flags]     Export the active viewport once
  vpexport import [flags] FILE...            Load display sets into the dataset store
  vpexport inspect [flags] ARCHIVE           Show the contents of a report archive
  vpexport interactive --session FILE        Line-editing session with the export toolbar
  vpexport serve --session FILE [flags]      Trigger exports and download archives over HTTP
  vpexport version                           Show version information

Run 'vpexport <command> --help' for the flags of a command.

Configuration is read from ~/.vpexport/config.toml (or config.json) unless
--config is given. VPEXPORT_OUTPUT_DIR, VPEXPORT_QUALITY, VPEXPORT_DATABASE,
VPEXPORT_LOG_LEVEL, VPEXPORT_SANITIZE and VPEXPORT_SERVER_TOKEN override
file settings.
`

// Streams are the process streams a command writes to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run executes the command named by args[0] and returns the process exit
// code.
func Run(ctx context.Context, args []string, streams Streams) int {
	if len(args) == 0 {
		fmt.Fprint(streams.Out, usageText)
		return ExitUsageError
	}

	var err error
	var jsonMode bool
	switch args[0] {
	case "export":
		jsonMode = hasFlag(args[1:], "--json")
		err = runExport(ctx, args[1:], streams)
	case "import":
		err = runImport(ctx, args[1:], streams)
	case "inspect":
		jsonMode = hasFlag(args[1:], "--json")
		err = runInspect(args[1:], streams)
	case "interactive", "i":
		err = runInteractive(ctx, args[1:], streams)
	case "serve":
		err = runServe(ctx, args[1:], streams)
	case "version", "--version", "-v":
		err = runVersion(args[1:], streams)
	case "help", "--help", "-h":
		fmt.Fprint(streams.Out, usageText)
		return ExitSuccess
	default:
		err = usageErrorf("", "unknown command %q", args[0])
		fmt.Fprint(streams.Err, usageText)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return ExitSuccess
	}
	var silent silentError
	if err != nil && !errors.As(err, &silent) {
		displayError(streams.Err, err, jsonMode)
	}
	return GetExitCode(err)
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}

// newFlagSet creates a flag set that reports errors instead of exiting.
func newFlagSet(name, usage string, streams Streams) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(streams.Err)
	fs.Usage = func() {
		fmt.Fprintf(streams.Err, "Usage: %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses args and converts flag errors to usage errors.
func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageErrorf(fs.Name(), "%v", err)
	}
	return nil
}

// =============================================================================
// CONFIG AND LOGGING
// =============================================================================

// loadConfig reads path, or the default locations when path is empty.
func loadConfig(path string, streams Streams) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
		return cfg, nil
	}

	cfg, err := config.Load()
	if cfg == nil {
		return nil, &ConfigError{Err: err}
	}
	if err != nil {
		// Defaults are in effect
		fmt.Fprintf(streams.Err, "warning: %v (using defaults)\n", err)
	}
	return cfg, nil
}

// newLogger returns a text logger on w at the configured level.
func newLogger(level string, w io.Writer) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// =============================================================================
// VERSION
// =============================================================================

// VersionInfo is the JSON shape of 'vpexport version --json'.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func runVersion(args []string, streams Streams) error {
	fs := newFlagSet("version", "vpexport version [--json]", streams)
	jsonOut := fs.Bool("json", false, "output as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if *jsonOut {
		return outputJSON(streams.Out, info)
	}

	st := newStyles(streams.Out)
	fmt.Fprintln(streams.Out, st.Title.Render("vpexport "+info.Version))
	fmt.Fprintln(streams.Out, st.field("Commit:", info.GitCommit))
	fmt.Fprintln(streams.Out, st.field("Built:", info.BuildDate))
	fmt.Fprintln(streams.Out, st.field("Go:", info.GoVersion))
	fmt.Fprintln(streams.Out, st.field("Platform:", info.Platform))
	return nil
}
