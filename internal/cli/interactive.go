// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/vpexport/internal/commands"
	"github.com/jeranaias/vpexport/internal/config"
	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/notify"
	"github.com/jeranaias/vpexport/internal/viewport"
)

const interactivePrompt = "vpexport> "

// errQuit ends the interactive loop.
var errQuit = errors.New("quit")

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads one input line per prompt.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerReader provides history and tab completion on a terminal.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(complete func(string) []string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)

	r := &linerReader{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		r.historyFile = filepath.Join(dir, "interactive_history")
		if f, err := os.Open(r.historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (r *linerReader) Close() error {
	if r.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
			if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
				r.line.WriteHistory(f)
				f.Close()
			}
		}
	}
	return r.line.Close()
}

// scanReader reads lines from a non-terminal input such as a pipe.
type scanReader struct {
	scanner *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error { return nil }

// =============================================================================
// INTERACTIVE SESSION
// =============================================================================

// interactive is a line-driven session with the export toolbar.
type interactive struct {
	app     *app
	toolbar *commands.Toolbar
	mode    *commands.Mode
	parser  *commands.Parser
	out     io.Writer
	st      styles
}

func runInteractive(ctx context.Context, args []string, streams Streams) error {
	fs := newFlagSet("interactive", "vpexport interactive --session FILE [flags]", streams)
	var f exportFlags
	f.register(fs)
	noWatch := fs.Bool("no-watch", false, "do not reload the session file when it changes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if f.session == "" {
		return usageErrorf("interactive", "--session is required")
	}

	cfg, err := f.config(fs, streams)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, streams.Err)

	a, err := newApp(ctx, cfg, logger, appOptions{
		SessionPath:  f.session,
		DatasetsPath: f.datasets,
		Sink:         notify.NewTerminalSink(streams.Out),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("cleanup failed", "error", cerr)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := newInteractive(a, streams.Out)
	if err := s.mode.OnEnter(); err != nil {
		return err
	}
	// In-flight exports finish before the mode is left.
	defer s.mode.OnExit()
	defer s.toolbar.Wait()

	if !*noWatch {
		err := viewport.WatchSession(ctx, f.session, a.grid, logger, func(err error) {
			if err != nil {
				fmt.Fprintf(s.out, "%s session reload failed: %v\n", s.st.Warning.Render("[WARN]"), err)
				return
			}
			fmt.Fprintln(s.out, s.st.Dim.Render("session reloaded"))
		})
		if err != nil {
			logger.Warn("session watch unavailable", "error", err)
		}
	}

	var reader lineReader
	if streams.In == os.Stdin && IsTTY() {
		completer := commands.NewCompleter(a.commands)
		completer.ButtonsFn = s.toolbar.ButtonIDs
		reader = newLinerReader(completer.Lines)
	} else {
		reader = &scanReader{scanner: bufio.NewScanner(streams.In)}
	}
	defer reader.Close()

	fmt.Fprintln(s.out, s.st.Title.Render("vpexport interactive")+s.st.Dim.Render("  (/help for commands)"))
	s.printToolbar()
	return s.loop(ctx, reader)
}

func newInteractive(a *app, out io.Writer) *interactive {
	s := &interactive{
		app:    a,
		out:    out,
		st:     newStyles(out),
		parser: commands.NewParser(a.commands),
	}
	s.toolbar = commands.NewToolbar(a.commands, a.logger)
	s.mode = commands.NewExportMode(s.toolbar, a.logger)
	a.commands.MustRegister(s.builtins()...)
	return s
}

func (s *interactive) loop(ctx context.Context, reader lineReader) error {
	for {
		line, err := reader.Prompt(interactivePrompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return err
		}
		if err := s.handle(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(s.out, "%s %v\n", s.st.Error.Render("[ERROR]"), err)
		}
	}
}

// handle executes one input line. A bare button id presses that button.
func (s *interactive) handle(ctx context.Context, line string) error {
	res := s.parser.Parse(line)
	if res.RawInput == "" {
		return nil
	}
	if !res.IsCommand {
		return s.toolbar.Press(ctx, res.RawInput)
	}
	if res.Err != nil {
		return res.Err
	}
	if res.Command == nil {
		return fmt.Errorf("%w: /%s (try /help)", commands.ErrUnknownCommand, res.CommandName)
	}
	if res.Command.Name == commands.ExportViewportCommand {
		// Typed exports run in the background like toolbar presses.
		return s.toolbar.Press(ctx, commands.ExportButtonID)
	}
	return s.app.commands.Run(ctx, res.CommandName, res.Args...)
}

// builtins are the session's own commands.
func (s *interactive) builtins() []*commands.Command {
	return []*commands.Command{
		{
			Name:        "press",
			Description: "Press a toolbar button",
			Usage:       "press <button>",
			Category:    "Toolbar",
			Args:        []commands.ArgDef{{Name: "button", Required: true, Type: commands.ArgTypeButton}},
			Handler: func(ctx context.Context, args []string) error {
				return s.toolbar.Press(ctx, args[0])
			},
		},
		{
			Name:        "toolbar",
			Description: "Show the primary toolbar section",
			Category:    "Toolbar",
			Handler: func(context.Context, []string) error {
				s.printToolbar()
				return nil
			},
		},
		{
			Name:        "enter",
			Description: "Enter export mode",
			Category:    "Toolbar",
			Handler: func(context.Context, []string) error {
				return s.mode.OnEnter()
			},
		},
		{
			Name:        "leave",
			Description: "Leave export mode and hide the toolbar",
			Category:    "Toolbar",
			Handler: func(context.Context, []string) error {
				s.mode.OnExit()
				return nil
			},
		},
		{
			Name:        "viewports",
			Aliases:     []string{"ls"},
			Description: "List viewports and their display sets",
			Category:    "Viewports",
			Handler: func(context.Context, []string) error {
				s.printViewports()
				return nil
			},
		},
		{
			Name:        "active",
			Description: "Make a viewport active, or clear with -",
			Usage:       "active <viewport>",
			Category:    "Viewports",
			Args:        []commands.ArgDef{{Name: "viewport", Required: true}},
			Handler: func(_ context.Context, args []string) error {
				if args[0] == "-" {
					s.app.grid.ClearActive()
					return nil
				}
				return s.app.grid.SetActive(model.ViewportID(args[0]))
			},
		},
		{
			Name:        "wait",
			Description: "Wait for running exports to finish",
			Category:    "Export",
			Handler: func(context.Context, []string) error {
				s.toolbar.Wait()
				return nil
			},
		},
		{
			Name:        "help",
			Aliases:     []string{"?"},
			Description: "Show available commands",
			Handler: func(context.Context, []string) error {
				fmt.Fprint(s.out, commands.HelpText(s.app.commands))
				return nil
			},
		},
		{
			Name:        "quit",
			Aliases:     []string{"q", "exit"},
			Description: "Wait for running exports and quit",
			Handler: func(context.Context, []string) error {
				return errQuit
			},
		},
	}
}

func (s *interactive) printToolbar() {
	buttons := s.toolbar.Section(commands.SectionPrimary)
	if len(buttons) == 0 {
		fmt.Fprintln(s.out, s.st.Dim.Render("toolbar hidden (/enter to show it)"))
		return
	}
	for _, b := range buttons {
		fmt.Fprintf(s.out, "  [%s] %s  %s\n", b.ID, b.Label, s.st.Dim.Render(b.Tooltip))
	}
}

func (s *interactive) printViewports() {
	active, hasActive := s.app.grid.ActiveViewportID()
	for _, id := range s.app.grid.Viewports() {
		marker := "  "
		if hasActive && id == active {
			marker = s.st.Success.Render("* ")
		}
		state := "mounted"
		if _, ok := s.app.grid.Element(id); !ok {
			state = "unmounted"
		}
		sets := s.app.grid.DisplaySetUIDs(id)
		fmt.Fprintf(s.out, "%s%s  %s  %s\n", marker, id, s.st.Dim.Render(state), strings.Join(sets, ", "))
	}
}
