// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/jeranaias/vpexport/internal/config"
	"github.com/jeranaias/vpexport/internal/model"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitExportError indicates an export ran and failed
	ExitExportError = 4
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError represents invalid command usage.
type UsageError struct {
	Command string
	Reason  string
}

func (e *UsageError) Error() string {
	if e.Command == "" {
		return e.Reason
	}
	return e.Command + ": " + e.Reason
}

func usageErrorf(command, format string, args ...any) error {
	return &UsageError{Command: command, Reason: fmt.Sprintf(format, args...)}
}

// ConfigError wraps a configuration load or validation failure.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR DISPLAY HELPERS
// =============================================================================

// displayError writes err in a consistent format.
func displayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		displayErrorJSON(w, err)
		return
	}
	st := newStyles(w)
	fmt.Fprintf(w, "%s %s\n", st.Error.Render("[ERROR]"), err.Error())
}

func displayErrorJSON(w io.Writer, err error) {
	output := map[string]any{
		"error":   err.Error(),
		"success": false,
	}

	var usageErr *UsageError
	var cfgErr *ConfigError
	var exportErr *model.ExportError
	switch {
	case errors.As(err, &usageErr):
		output["error_type"] = "usage_error"
	case errors.As(err, &cfgErr):
		output["error_type"] = "config_error"
	case errors.As(err, &exportErr):
		output["error_type"] = "export_error"
		output["kind"] = exportErr.Kind.String()
		output["message"] = model.Message(err)
	default:
		output["error_type"] = "generic_error"
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(output)
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var cfgErr *ConfigError
	var validateErrs config.ValidateErrors
	if errors.As(err, &cfgErr) || errors.As(err, &validateErrs) {
		return ExitConfigError
	}

	var exportErr *model.ExportError
	if errors.As(err, &exportErr) {
		return ExitExportError
	}

	if errors.Is(err, fs.ErrNotExist) {
		return ExitNotFoundError
	}
	return ExitGeneralError
}
