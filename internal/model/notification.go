// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// NotificationType selects how a sink presents a notification.
type NotificationType string

const (
	NotifyInfo    NotificationType = ""
	NotifySuccess NotificationType = "success"
	NotifyError   NotificationType = "error"
)

// Notification is a transient status message.
type Notification struct {
	Title   string           `json:"title"`
	Message string           `json:"message,omitempty"`
	Type    NotificationType `json:"type,omitempty"`
}

// ExportOutcome is the terminal result of one export run. It is handed to
// the caller and never persisted.
type ExportOutcome struct {
	RunID    string
	Filename string
	Location string
	Size     int
	Digest   string
	Err      error
}

// Succeeded reports whether the run delivered an archive.
func (o ExportOutcome) Succeeded() bool {
	return o.Err == nil
}

// Reason returns the user-facing failure reason, or "" on success.
func (o ExportOutcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return Message(o.Err)
}
