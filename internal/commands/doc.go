// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands binds named commands to toolbar buttons.
//
// A Registry maps command names and aliases to handlers. The export mode
// registers the ExportViewport button into the primary toolbar section when
// entered and hides the toolbar when left. Pressing a button runs its command
// in the background, so two presses start two independent exports.
//
// # Key Types
//
//   - Registry: named commands, aliases and categories
//   - Toolbar: buttons grouped into sections
//   - Mode: the export mode lifecycle
//   - Parser: splits interactive input lines into a command and arguments
//   - Completer: prefix completion for interactive input
//
// # Usage
//
//	reg := commands.NewRegistry()
//	reg.Register(commands.ExportCommand(exporter))
//	tb := commands.NewToolbar(reg, logger)
//	mode := commands.NewExportMode(tb, logger)
//	mode.OnEnter()
//	tb.Press(ctx, commands.ExportButtonID)
package commands
