// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package delivery names finished archives and hands them to the user.
//
// Archives are named report_<PatientName>_<StudyDate>.zip. With
// sanitization on, each component is restricted to characters that are
// safe on every common filesystem; already-safe names pass unchanged.
// FileDeliverer writes the archive into a downloads directory through a
// temporary file that is renamed into place.
package delivery
