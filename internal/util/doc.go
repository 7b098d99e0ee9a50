// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds the file and environment helpers shared by the
// config, storage and delivery layers.
//
// Archives and config files are written with WriteAtomic so an interrupted
// export never leaves a truncated report behind.
package util
