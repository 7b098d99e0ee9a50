// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import "fmt"

// State is a stage of one export run.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateCapturing
	StateEncoding
	StatePackaging
	StateDelivering
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "Idle",
	StateResolving:  "Resolving",
	StateCapturing:  "Capturing",
	StateEncoding:   "Encoding",
	StatePackaging:  "Packaging",
	StateDelivering: "Delivering",
	StateSucceeded:  "Succeeded",
	StateFailed:     "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// StateObserver is told about every state a run enters. Capture states
// may be reported from a worker goroutine of the run; the observer must be
// safe for concurrent use and must not block.
type StateObserver func(runID string, s State)
