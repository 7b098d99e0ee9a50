// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vpexport/internal/model"
)

// fakeExporter counts exports and can block until released.
type fakeExporter struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *fakeExporter) ExportViewport(ctx context.Context) model.ExportOutcome {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return model.ExportOutcome{Err: f.err}
}

func noop(context.Context, []string) error { return nil }

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Command{Name: "help", Aliases: []string{"h", "?"}, Handler: noop}))

	tests := []struct {
		name  string
		found bool
	}{
		{"help", true},
		{"h", true},
		{"?", true},
		{"/help", false},
		{"missing", false},
	}
	for _, tc := range tests {
		got := r.Get(tc.name)
		if tc.found {
			require.NotNil(t, got, tc.name)
			require.Equal(t, "help", got.Name)
		} else {
			require.Nil(t, got, tc.name)
		}
	}
}

func TestRegistry_RejectsConflicts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Command{Name: "a", Aliases: []string{"x"}, Handler: noop}))

	require.Error(t, r.Register(&Command{Name: "a", Handler: noop}))
	require.Error(t, r.Register(&Command{Name: "b", Aliases: []string{"x"}, Handler: noop}))
	require.Error(t, r.Register(&Command{Name: "x", Handler: noop}))
	require.Error(t, r.Register(&Command{Name: "", Handler: noop}))
	require.Error(t, r.Register(&Command{Name: "c"}))
	require.Nil(t, r.Get("b"))
}

func TestRegistry_ByCategory(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		&Command{Name: "b", Category: "Export", Handler: noop},
		&Command{Name: "a", Category: "Export", Handler: noop},
		&Command{Name: "quit", Handler: noop},
		&Command{Name: "secret", Hidden: true, Handler: noop},
	)

	groups := r.ByCategory()
	require.Len(t, groups, 2)
	require.Equal(t, "a", groups["Export"][0].Name)
	require.Equal(t, "b", groups["Export"][1].Name)
	require.Equal(t, "quit", groups["General"][0].Name)

	help := HelpText(r)
	require.Contains(t, help, "Export:")
	require.Contains(t, help, "/quit")
	require.NotContains(t, help, "secret")
}

func TestRegistry_Run(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.MustRegister(&Command{
		Name: "open",
		Args: []ArgDef{{Name: "target", Required: true, Type: ArgTypeEnum, Values: []string{"dir", "file"}}},
		Handler: func(_ context.Context, args []string) error {
			got = args
			return nil
		},
	})
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, "open", "dir"))
	require.Equal(t, []string{"dir"}, got)

	var verr *ValidationError
	require.ErrorAs(t, r.Run(ctx, "open"), &verr)
	require.Equal(t, "target", verr.Arg)
	require.ErrorAs(t, r.Run(ctx, "open", "window"), &verr)
	require.Equal(t, "window", verr.Got)

	require.ErrorIs(t, r.Run(ctx, "close"), ErrUnknownCommand)
}

func TestExportCommand(t *testing.T) {
	exp := &fakeExporter{}
	r := NewRegistry()
	r.MustRegister(ExportCommand(exp))

	require.NoError(t, r.Run(context.Background(), ExportViewportCommand))
	require.NoError(t, r.Run(context.Background(), "export"))
	require.EqualValues(t, 2, exp.calls.Load())

	exp.err = model.NewError(model.KindNoActiveViewport, "export", "No active viewport")
	err := r.Run(context.Background(), ExportViewportCommand)
	require.ErrorIs(t, err, model.ErrNoActiveViewport)
}

func TestExportCommand_ReportsOutcome(t *testing.T) {
	exp := &fakeExporter{err: errors.New("boom")}
	var outcomes []model.ExportOutcome
	cmd := ExportCommand(exp, func(o model.ExportOutcome) { outcomes = append(outcomes, o) })

	require.Error(t, cmd.Handler(context.Background(), nil))
	require.Len(t, outcomes, 1)
	require.EqualError(t, outcomes[0].Err, "boom")
}

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestParser_Parse(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(ExportCommand(&fakeExporter{}))
	p := NewParser(r)

	tests := []struct {
		input     string
		isCommand bool
		name      string
		args      []string
		found     bool
	}{
		{"/export", true, "export", nil, true},
		{"  /exportViewport  ", true, "exportViewport", nil, true},
		{"/press ExportViewport", true, "press", []string{"ExportViewport"}, false},
		{`/load "my session.yaml"`, true, "load", []string{"my session.yaml"}, false},
		{"/", true, "", nil, false},
		{"export", false, "", nil, false},
		{"", false, "", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			res := p.Parse(tc.input)
			require.Equal(t, tc.isCommand, res.IsCommand)
			require.Equal(t, tc.name, res.CommandName)
			require.Equal(t, tc.args, res.Args)
			require.Equal(t, tc.found, res.Command != nil)
		})
	}
}

func TestSplitCommandLine(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a b  c", []string{"a", "b", "c"}},
		{`a "b c" d`, []string{"a", "b c", "d"}},
		{`a 'b "c"'`, []string{"a", `b "c"`}},
		{`"say \"hi\""`, []string{`say "hi"`}},
		{`a ""`, []string{"a", ""}},
		{"Дое ^Джон", []string{"Дое", "^Джон"}},
		{"", nil},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, ParseArgs(tc.input), tc.input)
	}
}

func TestParser_UnterminatedQuote(t *testing.T) {
	p := NewParser(NewRegistry())
	res := p.Parse(`/active "vp 1`)
	require.ErrorIs(t, res.Err, ErrUnterminatedQuote)
	require.Equal(t, "active", res.CommandName)
	require.Equal(t, []string{"vp 1"}, res.Args)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Command: "open", Arg: "target", Message: "invalid value", Got: "window", Expected: "dir, file"}
	require.EqualError(t, err, `/open: invalid value <target>: "window" (want dir, file)`)
}

func TestIsCommand(t *testing.T) {
	require.True(t, IsCommand("/export"))
	require.True(t, IsCommand("  /help"))
	require.False(t, IsCommand("hello /help"))
	require.False(t, IsCommand(""))
}

// =============================================================================
// TOOLBAR TESTS
// =============================================================================

func TestToolbar_SectionsAndVisibility(t *testing.T) {
	tb := NewToolbar(NewRegistry(), nil)
	require.NoError(t, tb.Register(ExportButton()))

	require.ErrorIs(t, tb.UpdateSection(SectionPrimary, []string{"Nope"}), ErrUnknownButton)
	require.NoError(t, tb.UpdateSection(SectionPrimary, []string{ExportButtonID}))

	buttons := tb.Section(SectionPrimary)
	require.Len(t, buttons, 1)
	require.Equal(t, "Export", buttons[0].Label)
	require.Equal(t, "Export Current Viewport", buttons[0].Tooltip)
	require.Equal(t, ExportViewportCommand, buttons[0].Command)

	tb.Hide()
	require.True(t, tb.Hidden())
	require.Empty(t, tb.Section(SectionPrimary))
	tb.Show()
	require.Len(t, tb.Section(SectionPrimary), 1)
}

func TestToolbar_RegisterValidation(t *testing.T) {
	tb := NewToolbar(NewRegistry(), nil)
	require.Error(t, tb.Register(Button{Command: "x"}))
	require.Error(t, tb.Register(Button{ID: "x"}))
}

func TestToolbar_PressErrors(t *testing.T) {
	tb := NewToolbar(NewRegistry(), nil)
	ctx := context.Background()

	require.ErrorIs(t, tb.Press(ctx, "missing"), ErrUnknownButton)

	require.NoError(t, tb.Register(ExportButton()))
	require.ErrorIs(t, tb.Press(ctx, ExportButtonID), ErrUnknownCommand)

	tb.registry.MustRegister(ExportCommand(&fakeExporter{}))
	tb.Hide()
	require.ErrorIs(t, tb.Press(ctx, ExportButtonID), ErrToolbarHidden)
}

func TestToolbar_DoublePressRunsIndependently(t *testing.T) {
	exp := &fakeExporter{release: make(chan struct{})}
	reg := NewRegistry()
	reg.MustRegister(ExportCommand(exp))
	tb := NewToolbar(reg, nil)
	require.NoError(t, tb.Register(ExportButton()))

	var mu sync.Mutex
	var results []error
	tb.OnResult = func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if id == ExportButtonID {
			results = append(results, err)
		}
	}

	ctx := context.Background()
	require.NoError(t, tb.Press(ctx, ExportButtonID))
	require.NoError(t, tb.Press(ctx, ExportButtonID))

	// Both exports are in flight before either is released.
	require.Eventually(t, func() bool { return exp.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	close(exp.release)
	tb.Wait()
	require.Len(t, results, 2)
}

func TestToolbar_ResultCarriesError(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry()
	reg.MustRegister(&Command{Name: "fail", Handler: func(context.Context, []string) error { return boom }})
	tb := NewToolbar(reg, nil)
	require.NoError(t, tb.Register(Button{ID: "Fail", Command: "fail"}))

	var got atomic.Value
	tb.OnResult = func(_ string, err error) { got.Store(err) }
	require.NoError(t, tb.Press(context.Background(), "Fail"))
	tb.Wait()
	require.ErrorIs(t, got.Load().(error), boom)
}

// =============================================================================
// MODE TESTS
// =============================================================================

func TestExportMode_Lifecycle(t *testing.T) {
	exp := &fakeExporter{}
	reg := NewRegistry()
	reg.MustRegister(ExportCommand(exp))
	tb := NewToolbar(reg, nil)
	mode := NewExportMode(tb, nil)
	ctx := context.Background()

	require.False(t, mode.Active())
	require.ErrorIs(t, tb.Press(ctx, ExportButtonID), ErrUnknownButton)

	require.NoError(t, mode.OnEnter())
	require.True(t, mode.Active())
	primary := tb.Section(SectionPrimary)
	require.Len(t, primary, 1)
	require.Equal(t, ExportButtonID, primary[0].ID)

	require.NoError(t, tb.Press(ctx, ExportButtonID))
	tb.Wait()
	require.EqualValues(t, 1, exp.calls.Load())

	mode.OnExit()
	require.False(t, mode.Active())
	require.True(t, tb.Hidden())
	require.ErrorIs(t, tb.Press(ctx, ExportButtonID), ErrToolbarHidden)

	// Entering again restores the toolbar.
	require.NoError(t, mode.OnEnter())
	require.False(t, tb.Hidden())
	require.Len(t, tb.Section(SectionPrimary), 1)
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func TestCompleter_Commands(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(
		ExportCommand(&fakeExporter{}),
		&Command{Name: "help", Handler: noop},
		&Command{Name: "hidden", Hidden: true, Handler: noop},
	)
	c := NewCompleter(reg)

	values := func(cs []Completion) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Value)
		}
		return out
	}

	require.Equal(t, []string{"export", "exportViewport"}, values(c.Complete("/exp")))
	require.Equal(t, []string{"help"}, values(c.Complete("/h")))
	require.Nil(t, c.Complete("exp"))
	require.Equal(t, []string{"/export", "/exportViewport"}, c.Lines("/exp"))
}

func TestCompleter_Arguments(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(
		&Command{Name: "press", Args: []ArgDef{{Name: "button", Type: ArgTypeButton}}, Handler: noop},
		&Command{Name: "level", Args: []ArgDef{{Name: "level", Type: ArgTypeEnum, Values: []string{"debug", "info"}}}, Handler: noop},
		&Command{Name: "load", Args: []ArgDef{{Name: "file", Type: ArgTypeFile}}, Handler: noop},
	)
	c := NewCompleter(reg)
	c.ButtonsFn = func() []string { return []string{ExportButtonID} }

	require.Equal(t, []string{"/press ExportViewport"}, c.Lines("/press Ex"))
	require.Equal(t, []string{"/press ExportViewport"}, c.Lines("/press "))
	require.Equal(t, []string{"/level debug"}, c.Lines("/level d"))
	require.Nil(t, c.Lines("/level debug extra"))
	require.Nil(t, c.Lines("/unknown a"))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.yaml"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	lines := c.Lines("/load " + dir + string(os.PathSeparator))
	require.ElementsMatch(t, []string{
		"/load " + filepath.Join(dir, "session.yaml"),
		"/load " + filepath.Join(dir, "sub") + string(os.PathSeparator),
	}, lines)
	require.Equal(t, []string{"/load " + filepath.Join(dir, "session.yaml")},
		c.Lines("/load "+filepath.Join(dir, "ses")))
}
