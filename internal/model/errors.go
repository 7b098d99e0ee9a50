// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// ErrorKind classifies a pipeline failure.
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindNoActiveViewport
	KindSurfaceNotFound
	KindElementNotFound
	KindNoDatasetBound
	KindDatasetNotFound
	KindCaptureFailed
	KindEncodingFailed
	KindPackagingFailed
	KindDeliveryFailed
)

var kindNames = map[ErrorKind]string{
	KindUnexpected:       "UnexpectedError",
	KindNoActiveViewport: "NoActiveViewport",
	KindSurfaceNotFound:  "SurfaceNotFound",
	KindElementNotFound:  "ElementNotFound",
	KindNoDatasetBound:   "NoDatasetBound",
	KindDatasetNotFound:  "DatasetNotFound",
	KindCaptureFailed:    "CaptureFailed",
	KindEncodingFailed:   "EncodingFailed",
	KindPackagingFailed:  "PackagingFailed",
	KindDeliveryFailed:   "DeliveryFailed",
}

// String returns the taxonomy name of the kind.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinel errors, one per kind. errors.Is matches any *ExportError of the
// same kind against these.
var (
	ErrUnexpected       = errors.New("unexpected error")
	ErrNoActiveViewport = errors.New("no active viewport")
	ErrSurfaceNotFound  = errors.New("viewport surface not found")
	ErrElementNotFound  = errors.New("viewport element not mounted")
	ErrNoDatasetBound   = errors.New("no display set bound to viewport")
	ErrDatasetNotFound  = errors.New("display set not found")
	ErrCaptureFailed    = errors.New("capture failed")
	ErrEncodingFailed   = errors.New("image encoding failed")
	ErrPackagingFailed  = errors.New("archive packaging failed")
	ErrDeliveryFailed   = errors.New("delivery failed")
)

var kindSentinels = map[ErrorKind]error{
	KindUnexpected:       ErrUnexpected,
	KindNoActiveViewport: ErrNoActiveViewport,
	KindSurfaceNotFound:  ErrSurfaceNotFound,
	KindElementNotFound:  ErrElementNotFound,
	KindNoDatasetBound:   ErrNoDatasetBound,
	KindDatasetNotFound:  ErrDatasetNotFound,
	KindCaptureFailed:    ErrCaptureFailed,
	KindEncodingFailed:   ErrEncodingFailed,
	KindPackagingFailed:  ErrPackagingFailed,
	KindDeliveryFailed:   ErrDeliveryFailed,
}

// ExportError is a classified failure raised by a pipeline stage.
type ExportError struct {
	Kind ErrorKind
	// Op is the operation that failed, e.g. "capture" or "resolve metadata".
	Op string
	// Detail is the human readable reason. Falls back to Err, then to the
	// kind's sentinel text.
	Detail string
	Err    error
}

// NewError builds an ExportError with a formatted detail message.
func NewError(kind ErrorKind, op, format string, args ...any) *ExportError {
	return &ExportError{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under kind. A nil err yields nil. An err that is
// already an *ExportError keeps its own kind.
func WrapError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExportError
	if errors.As(err, &ee) {
		return err
	}
	return &ExportError{Kind: kind, Op: op, Err: err}
}

func (e *ExportError) Error() string {
	msg := e.message()
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *ExportError) message() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Err != nil:
		return e.Err.Error()
	default:
		return kindSentinels[e.Kind].Error()
	}
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *ExportError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of err, KindUnexpected when err is not classified.
func KindOf(err error) ErrorKind {
	var ee *ExportError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnexpected
}

// FallbackMessage is shown when a failure carries no message.
const FallbackMessage = "Unexpected error"

// Message returns the user-facing reason for err. The operation prefix is
// dropped so notifications read naturally.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ee *ExportError
	if errors.As(err, &ee) {
		if msg := strings.TrimSpace(ee.message()); msg != "" {
			return msg
		}
		return FallbackMessage
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return FallbackMessage
}
