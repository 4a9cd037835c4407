// Package sdkerr defines the error taxonomy for the SDK.
//
// Per-call failures (control round-trips, sends) surface as the call's
// result. Session-fatal failures (connection loss) broadcast to every
// outstanding waiter. A single malformed frame or failed callback is never
// session-fatal.
package sdkerr

import (
	"errors"
	"fmt"
	"time"
)

// SDKError marks every typed error produced by this module.
type SDKError interface {
	error
	IsSDKError() bool
}

var (
	_ SDKError = (*BinaryNotFoundError)(nil)
	_ SDKError = (*ConnectionError)(nil)
	_ SDKError = (*ProcessExitError)(nil)
	_ SDKError = (*ParseError)(nil)
	_ SDKError = (*ControlError)(nil)
	_ SDKError = (*TimeoutError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrNotConnected indicates an operation that requires a connected session.
	ErrNotConnected = errors.New("session not connected")

	// ErrAlreadyConnected indicates Connect was called twice.
	ErrAlreadyConnected = errors.New("session already connected")

	// ErrSessionClosed indicates the client was disconnected and cannot be
	// reused; create a new one.
	ErrSessionClosed = errors.New("session closed: clients are single-use")

	// ErrConnectionClosed indicates the pipe closed or the process exited
	// while work was outstanding.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrTransportNotStarted indicates a write before Start.
	ErrTransportNotStarted = errors.New("transport not started")

	// ErrInputClosed indicates stdin was already closed.
	ErrInputClosed = errors.New("input closed")

	// ErrConduitStopped indicates the control conduit was deliberately
	// stopped while a request was pending. A peer-side stream end surfaces
	// as ErrConnectionClosed instead.
	ErrConduitStopped = errors.New("control conduit stopped")

	// ErrReceiverBusy indicates a second concurrent receive call on the same
	// session; receives are single-consumer.
	ErrReceiverBusy = errors.New("receive already in progress")

	// ErrUnknownMessageType indicates an event message type this SDK does not
	// recognize. Callers skip these rather than failing.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrCallbackCancelled indicates an inbound callback was cancelled by the
	// agent process before it completed.
	ErrCallbackCancelled = errors.New("callback cancelled")
)

// BinaryNotFoundError indicates the agent binary could not be located.
type BinaryNotFoundError struct {
	SearchedPaths []string
}

func (e *BinaryNotFoundError) Error() string {
	return fmt.Sprintf("agent binary not found in: %v", e.SearchedPaths)
}

// IsSDKError implements SDKError.
func (e *BinaryNotFoundError) IsSDKError() bool { return true }

// ConnectionError indicates the agent process failed to spawn or its pipes
// could not be set up. Fatal to Connect.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to agent process: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsSDKError implements SDKError.
func (e *ConnectionError) IsSDKError() bool { return true }

// ProcessExitError indicates the agent process exited unexpectedly.
// Stderr is the diagnostic side channel, never parsed as protocol content.
type ProcessExitError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("agent process exited (code %d): %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("agent process exited (code %d): %v", e.ExitCode, e.Err)
}

func (e *ProcessExitError) Unwrap() error { return e.Err }

// IsSDKError implements SDKError.
func (e *ProcessExitError) IsSDKError() bool { return true }

// ParseError indicates a structurally valid frame whose event payload could
// not be converted into a typed Message.
type ParseError struct {
	Reason string
	Err    error
	Data   map[string]any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse message: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsSDKError implements SDKError.
func (e *ParseError) IsSDKError() bool { return true }

// ControlError indicates the agent process answered a control request with an
// error result. Scoped to the one request; the session continues.
type ControlError struct {
	RequestID string
	Message   string
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("control request %s failed: %s", e.RequestID, e.Message)
}

// IsSDKError implements SDKError.
func (e *ControlError) IsSDKError() bool { return true }

// TimeoutError indicates a control round-trip exceeded its deadline.
// Recoverable; the caller may retry.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("control request timed out after %s", e.Duration)
}

// IsSDKError implements SDKError.
func (e *TimeoutError) IsSDKError() bool { return true }
