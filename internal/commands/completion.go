// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"sort"
	"strings"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completion is one candidate.
type Completion struct {
	Value       string
	Description string
	Score       int
}

// Completer completes command names and arguments.
type Completer struct {
	registry *Registry

	// ButtonsFn returns the button ids offered for ArgTypeButton.
	ButtonsFn func() []string
}

// NewCompleter creates a completer over registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns candidates for the partial input.
func (c *Completer) Complete(input string) []Completion {
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	parts := splitCommandLine(input[1:])
	trailingSpace := strings.HasSuffix(input, " ")
	if len(parts) == 0 {
		return c.completeCommands("")
	}
	if len(parts) == 1 && !trailingSpace {
		return c.completeCommands(parts[0])
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}

	argIndex := len(parts) - 2
	partial := ""
	if trailingSpace {
		argIndex++
	} else {
		partial = parts[len(parts)-1]
	}
	return c.completeArg(cmd, argIndex, partial)
}

// Lines completes a whole input line, returning full replacement lines in
// the form line editors expect.
func (c *Completer) Lines(line string) []string {
	completions := c.Complete(line)
	if len(completions) == 0 {
		return nil
	}

	prefix := "/"
	if idx := strings.LastIndex(line, " "); idx >= 0 {
		prefix = line[:idx+1]
	}
	out := make([]string, 0, len(completions))
	for _, comp := range completions {
		out = append(out, prefix+comp.Value)
	}
	return out
}

func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		for i, name := range append([]string{cmd.Name}, cmd.Aliases...) {
			if !strings.HasPrefix(strings.ToLower(name), partial) {
				continue
			}
			score := calculateScore(name, partial)
			if i > 0 {
				// Slightly lower score for aliases
				score -= 10
			}
			completions = append(completions, Completion{
				Value:       name,
				Description: cmd.Description,
				Score:       score,
			})
		}
	}

	sortCompletions(completions)
	return completions
}

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]
	switch arg.Type {
	case ArgTypeEnum:
		return completeFromList(arg.Values, partial)
	case ArgTypeButton:
		if c.ButtonsFn == nil {
			return nil
		}
		return completeFromList(c.ButtonsFn(), partial)
	case ArgTypeCommand:
		var names []string
		for _, cmd := range c.registry.All() {
			if !cmd.Hidden {
				names = append(names, cmd.Name)
			}
		}
		return completeFromList(names, partial)
	case ArgTypeFile:
		return completeFiles(partial)
	default:
		return nil
	}
}

// completeFiles lists entries of the directory named by partial. Hidden
// files are offered only when the partial name starts with a dot.
func completeFiles(partial string) []Completion {
	// head is kept verbatim so candidates extend what was typed.
	head, prefix := "", partial
	if idx := strings.LastIndexAny(partial, `/`+string(os.PathSeparator)); idx >= 0 {
		head, prefix = partial[:idx+1], partial[idx+1:]
	}
	dir := head
	if dir == "" {
		dir = "."
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var completions []Completion
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}

		path := head + name
		score := calculateScore(name, prefix)
		desc := "file"
		if entry.IsDir() {
			path += string(os.PathSeparator)
			score += 5
			desc = "directory"
		}
		completions = append(completions, Completion{Value: path, Description: desc, Score: score})
	}

	sortCompletions(completions)
	if len(completions) > 20 {
		completions = completions[:20]
	}
	return completions
}

func completeFromList(values []string, partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)
	for _, value := range values {
		if strings.HasPrefix(strings.ToLower(value), partial) {
			completions = append(completions, Completion{
				Value: value,
				Score: calculateScore(value, partial),
			})
		}
	}
	sortCompletions(completions)
	return completions
}

// calculateScore ranks a candidate; higher is better.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.Slice(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}
