// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/util"
)

// Deliverer hands a finished archive to the user.
type Deliverer interface {
	// Deliver stores blob under filename and returns where it went.
	Deliver(ctx context.Context, blob []byte, filename string) (string, error)
}

// FileDeliverer writes archives into a directory.
type FileDeliverer struct {
	dir    string
	open   bool
	logger *slog.Logger

	// opener reveals a delivered file; replaced in tests.
	opener func(path string) error
}

// NewFileDeliverer creates a FileDeliverer for dir ("~" is expanded).
// With open set, the OS default application is launched on each file.
func NewFileDeliverer(dir string, open bool, logger *slog.Logger) (*FileDeliverer, error) {
	expanded, err := util.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileDeliverer{dir: expanded, open: open, logger: logger, opener: openFile}, nil
}

// Dir returns the output directory.
func (d *FileDeliverer) Dir() string {
	return d.dir
}

// Deliver implements Deliverer. An existing file with the same name is
// replaced.
func (d *FileDeliverer) Deliver(ctx context.Context, blob []byte, filename string) (string, error) {
	const op = "deliver"

	if err := ctx.Err(); err != nil {
		return "", model.WrapError(model.KindDeliveryFailed, op, err)
	}
	if !ValidFilename(filename) {
		return "", model.NewError(model.KindDeliveryFailed, op, "invalid filename %q", filename)
	}
	if len(blob) == 0 {
		return "", model.NewError(model.KindDeliveryFailed, op, "archive is empty")
	}

	path := filepath.Join(d.dir, filename)
	if err := util.AtomicWriteFile(path, blob, 0644); err != nil {
		return "", model.NewError(model.KindDeliveryFailed, op, "save %s: %v", filename, err)
	}

	if d.open {
		if err := d.opener(path); err != nil {
			// The file is saved; failing to show it is not a delivery failure
			d.logger.Warn("could not open delivered file", "path", path, "error", err)
		}
	}
	return path, nil
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
