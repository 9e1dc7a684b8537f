// Copyright 2026 The JetStream Protocol Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jsp

import (
	"errors"
	"fmt"

	"github.com/gravitational/trace"
)

// Kind identifies a category of protocol-level failure.
type Kind string

const (
	KindHandshakeFailed      Kind = "handshake_failed"
	KindAuthFailed           Kind = "auth_failed"
	KindReplayDetected       Kind = "replay_detected"
	KindOutOfWindow          Kind = "out_of_window"
	KindCongestionWindowFull Kind = "congestion_window_full"
	KindRateLimited          Kind = "rate_limited"
	KindStreamClosed         Kind = "stream_closed"
	KindConnectionClosed     Kind = "connection_closed"
	KindPathValidationFailed Kind = "path_validation_failed"
	KindIdleTimeout          Kind = "idle_timeout"
	KindProtocolViolation    Kind = "protocol_violation"
)

// fatal reports whether an error of this Kind transitions the connection
// state machine to Closing. Single-frame faults are absorbed locally
// instead.
func (k Kind) fatal() bool {
	switch k {
	case KindIdleTimeout, KindProtocolViolation:
		return true
	default:
		return false
	}
}

// Error is the typed error returned across the public API. It wraps a
// trace.TraceErr so callers get both a stable Kind to switch on and a
// stack trace for diagnostics, matching the gravitational/trace idiom
// used throughout this codebase.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, jsp.KindX) style checks work by comparing Kind
// when the target is a bare Kind wrapped in an *Error.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// Fatal reports whether err, if it is a *Error, is fatal to the
// connection.
func Fatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind.fatal()
}

// NewError builds a typed protocol Error of the given Kind from the
// formatted message (or the Kind's name when format is empty),
// attaching a stack trace via trace.Wrap.
func NewError(kind Kind, format string, args ...any) *Error {
	msg := kind.String()
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, cause: trace.Wrap(trace.BadParameter("%s", msg))}
}

// WrapError wraps an existing error with a protocol Kind.
func WrapError(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: trace.Wrap(err)}
}

func (k Kind) String() string { return string(k) }

// KindOf extracts the Kind from err, returning ok=false if err is not (or
// does not wrap) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}
