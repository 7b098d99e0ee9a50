// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"time"

	"github.com/spf13/pflag"

	"github.com/jeranaias/vpexport/internal/commands"
	"github.com/jeranaias/vpexport/internal/config"
	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/notify"
)

// exportResult is the JSON shape of 'vpexport export --json'.
type exportResult struct {
	Success       bool                 `json:"success"`
	RunID         string               `json:"run_id"`
	Filename      string               `json:"filename,omitempty"`
	Location      string               `json:"location,omitempty"`
	Size          int                  `json:"size,omitempty"`
	Digest        string               `json:"digest,omitempty"`
	Error         string               `json:"error,omitempty"`
	Kind          string               `json:"kind,omitempty"`
	Notifications []model.Notification `json:"notifications"`
	Elapsed       string               `json:"elapsed"`
}

// exportFlags are shared by export and interactive.
type exportFlags struct {
	session    string
	datasets   string
	configPath string
	output     string
	quality    float64
	sentinel   string
	raw        bool
}

func runExport(ctx context.Context, args []string, streams Streams) error {
	fs := newFlagSet("export", "vpexport export --session FILE [flags]", streams)
	var f exportFlags
	f.register(fs)
	viewportID := fs.String("viewport", "", "make this viewport active before exporting")
	jsonOut := fs.Bool("json", false, "print the outcome as JSON instead of notifications")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if f.session == "" {
		return usageErrorf("export", "--session is required")
	}
	if fs.NArg() > 0 {
		return usageErrorf("export", "unexpected argument %q", fs.Arg(0))
	}

	cfg, err := f.config(fs, streams)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, streams.Err)

	recorder := notify.NewRecorder()
	var sink notify.Sink = notify.Multi{recorder, notify.NewTerminalSink(streams.Out)}
	if *jsonOut {
		sink = recorder
	}

	var outcome model.ExportOutcome
	a, err := newApp(ctx, cfg, logger, appOptions{
		SessionPath:  f.session,
		DatasetsPath: f.datasets,
		Sink:         sink,
		OnOutcome:    func(o model.ExportOutcome) { outcome = o },
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("cleanup failed", "error", cerr)
		}
	}()

	if *viewportID != "" {
		if err := a.grid.SetActive(model.ViewportID(*viewportID)); err != nil {
			return usageErrorf("export", "%v", err)
		}
	}

	start := time.Now()
	runErr := a.commands.Run(ctx, commands.ExportViewportCommand)

	if *jsonOut {
		res := exportResult{
			Success:       runErr == nil,
			RunID:         outcome.RunID,
			Filename:      outcome.Filename,
			Location:      outcome.Location,
			Size:          outcome.Size,
			Digest:        outcome.Digest,
			Notifications: recorder.Notifications(),
			Elapsed:       elapsed(time.Since(start)),
		}
		if runErr != nil {
			res.Error = model.Message(runErr)
			res.Kind = model.KindOf(runErr).String()
		}
		if err := outputJSON(streams.Out, res); err != nil {
			return err
		}
	}
	if runErr != nil {
		// The notification sink or the JSON body already reported it
		return silentError{runErr}
	}
	return nil
}

func (f *exportFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.session, "session", "", "viewport session file (YAML or JSON)")
	fs.StringVar(&f.datasets, "datasets", "", "serve display sets from this file instead of the dataset store")
	fs.StringVar(&f.configPath, "config", "", "config file (default ~/.vpexport/config.toml)")
	fs.StringVar(&f.output, "output", "", "directory receiving archives")
	fs.Float64Var(&f.quality, "quality", 1, "JPEG quality in [0, 1]")
	fs.StringVar(&f.sentinel, "sentinel", "", "placeholder for missing attributes")
	fs.BoolVar(&f.raw, "raw-filenames", false, "keep patient names verbatim in archive names")
}

// config loads the configuration and applies the flags that were set.
func (f *exportFlags) config(fs *pflag.FlagSet, streams Streams) (*config.Config, error) {
	cfg, err := loadConfig(f.configPath, streams)
	if err != nil {
		return nil, err
	}

	if fs.Changed("output") {
		cfg.Delivery.OutputDir = f.output
	}
	if fs.Changed("quality") {
		cfg.Export.Quality = f.quality
	}
	if fs.Changed("sentinel") {
		cfg.Export.Sentinel = f.sentinel
	}
	if fs.Changed("raw-filenames") {
		cfg.Delivery.SanitizeFilenames = !f.raw
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}

// silentError carries the exit status of a failure that has already been
// shown to the user.
type silentError struct{ err error }

func (e silentError) Error() string { return e.err.Error() }
func (e silentError) Unwrap() error { return e.err }
