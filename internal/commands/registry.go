// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/vpexport/internal/model"
)

// ExportViewportCommand is the command bound to the export button.
const ExportViewportCommand = "exportViewport"

// ErrUnknownCommand is returned when no command matches a name.
var ErrUnknownCommand = errors.New("unknown command")

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command is a named action.
type Command struct {
	// Name is the primary command name (e.g., "exportViewport")
	Name string

	// Aliases are alternative names (e.g., "export")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// Handler executes the command
	Handler func(ctx context.Context, args []string) error

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string
	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeFile                   // File path
	ArgTypeEnum                   // One of predefined values
	ArgTypeButton                 // Toolbar button id
	ArgTypeCommand                // Command name
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
}

// Register adds a command. Names and aliases must be unique across the
// registry.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil || cmd.Name == "" {
		return errors.New("command has no name")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
		if r.lookupLocked(name) != nil {
			return fmt.Errorf("command name %q already registered", name)
		}
	}
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
	return nil
}

// MustRegister is Register for built-in wiring; it panics on conflicts.
func (r *Registry) MustRegister(cmds ...*Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(err)
		}
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(name)
}

func (r *Registry) lookupLocked(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	r.mu.RLock()
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	r.mu.RUnlock()

	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Run executes the named command.
func (r *Registry) Run(ctx context.Context, name string, args ...string) error {
	cmd := r.Get(name)
	if cmd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if err := ValidateArgs(cmd, args); err != nil {
		return err
	}
	return cmd.Handler(ctx, args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

// ViewportExporter runs one export of the active viewport.
type ViewportExporter interface {
	ExportViewport(ctx context.Context) model.ExportOutcome
}

// ExportCommand binds exportViewport to exp. The outcome has already been
// shown to the user by the exporter; the handler returns its error so that
// scripted callers can set an exit status. Each of onDone receives the
// outcome of every run.
func ExportCommand(exp ViewportExporter, onDone ...func(model.ExportOutcome)) *Command {
	return &Command{
		Name:        ExportViewportCommand,
		Aliases:     []string{"export"},
		Description: "Export the active viewport as a report archive",
		Usage:       "export",
		Category:    "Export",
		Handler: func(ctx context.Context, _ []string) error {
			out := exp.ExportViewport(ctx)
			for _, fn := range onDone {
				fn(out)
			}
			return out.Err
		},
	}
}

// HelpText lists visible commands grouped by category.
func HelpText(r *Registry) string {
	groups := r.ByCategory()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name)
		b.WriteString(":\n")
		for _, cmd := range groups[name] {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			fmt.Fprintf(&b, "  /%-24s %s\n", usage, cmd.Description)
		}
	}
	return b.String()
}
