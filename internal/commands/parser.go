// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// ErrUnterminatedQuote reports a quoted argument that is never closed.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// ParseResult is one interactive input line taken apart.
type ParseResult struct {
	// IsCommand is set for lines starting with "/".
	IsCommand bool
	// Command is the registered command, nil when the name is unknown.
	Command *Command
	// CommandName is the name as typed, without the slash.
	CommandName string
	Args        []string
	RawInput    string
	// Err is set when the line could not be split.
	Err error
}

// Parser splits interactive input into a command and its arguments.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser over registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse takes one input line apart. Lines without a leading slash are not
// commands; they are returned trimmed in RawInput.
func (p *Parser) Parse(input string) ParseResult {
	res := ParseResult{RawInput: strings.TrimSpace(input)}
	body, ok := strings.CutPrefix(res.RawInput, "/")
	if !ok {
		return res
	}
	res.IsCommand = true

	tokens, err := tokenize(body)
	if err != nil {
		res.Err = err
	}
	if len(tokens) == 0 {
		return res
	}
	res.CommandName = tokens[0]
	if len(tokens) > 1 {
		res.Args = tokens[1:]
	}
	res.Command = p.registry.Get(res.CommandName)
	return res
}

// ParseArgs splits a raw argument string. An unterminated quote keeps what
// was typed as the last argument.
func ParseArgs(input string) []string {
	tokens, _ := tokenize(input)
	return tokens
}

// splitCommandLine is ParseArgs for the completer.
func splitCommandLine(input string) []string {
	return ParseArgs(input)
}

// tokenize splits on unquoted white space. Single and double quotes group
// words such as "John Doe"; inside quotes a backslash escapes a quote or a
// backslash and is literal otherwise. An empty quoted pair is an empty
// argument.
func tokenize(input string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		quote   rune // active quote character, 0 outside quotes
		escaped bool
		started bool // a token is open, possibly empty
	)
	flush := func() {
		if started {
			tokens = append(tokens, cur.String())
			cur.Reset()
			started = false
		}
	}

	for _, r := range input {
		switch {
		case escaped:
			if r != quote && r != '\\' {
				cur.WriteRune('\\')
			}
			cur.WriteRune(r)
			escaped = false
		case quote != 0 && r == '\\':
			escaped = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			started = true
		case unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if escaped {
		cur.WriteRune('\\')
	}
	flush()

	if quote != 0 {
		return tokens, fmt.Errorf("%w (%c)", ErrUnterminatedQuote, quote)
	}
	return tokens, nil
}

// IsCommand reports whether input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// ValidateArgs checks required arguments and enum values.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}

	for i, argDef := range cmd.Args {
		if argDef.Required && i >= len(args) {
			return &ValidationError{
				Command:  cmd.Name,
				Arg:      argDef.Name,
				Message:  "required argument missing",
				Expected: argDef.Description,
			}
		}

		if i < len(args) && argDef.Type == ArgTypeEnum && len(argDef.Values) > 0 {
			match := func(v string) bool { return strings.EqualFold(v, args[i]) }
			if !slices.ContainsFunc(argDef.Values, match) {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      argDef.Name,
					Message:  "invalid value",
					Got:      args[i],
					Expected: strings.Join(argDef.Values, ", "),
				}
			}
		}
	}
	return nil
}

// ValidationError describes a rejected argument.
type ValidationError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "/%s: %s", e.Command, e.Message)
	if e.Arg != "" {
		fmt.Fprintf(&b, " <%s>", e.Arg)
	}
	if e.Got != "" {
		fmt.Fprintf(&b, ": %q", e.Got)
	}
	if e.Expected != "" {
		fmt.Fprintf(&b, " (want %s)", e.Expected)
	}
	return b.String()
}
