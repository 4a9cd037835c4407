package agentclient

import "github.com/moonbase-labs/agentclient-go/internal/sdkerr"

// SDKError marks every error this module produces. Use errors.As with the
// concrete types, or errors.Is with the sentinels, for finer handling.
type SDKError = sdkerr.SDKError

// Sentinel errors.
var (
	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = sdkerr.ErrNotConnected

	// ErrAlreadyConnected is returned by Connect on a connected client.
	ErrAlreadyConnected = sdkerr.ErrAlreadyConnected

	// ErrSessionClosed is returned when the session ended before or during
	// the operation.
	ErrSessionClosed = sdkerr.ErrSessionClosed

	// ErrReceiverBusy is returned when a second consumer attaches to the
	// message stream while one is active.
	ErrReceiverBusy = sdkerr.ErrReceiverBusy

	// ErrUnknownMessageType marks frames whose type the module does not
	// recognize. Streams skip such frames rather than failing.
	ErrUnknownMessageType = sdkerr.ErrUnknownMessageType
)

// Typed errors.
type (
	// BinaryNotFoundError is returned when the agent binary cannot be
	// located.
	BinaryNotFoundError = sdkerr.BinaryNotFoundError

	// ConnectionError wraps failures to start or talk to the process.
	ConnectionError = sdkerr.ConnectionError

	// ProcessExitError reports an abnormal process exit, carrying the exit
	// code and captured stderr.
	ProcessExitError = sdkerr.ProcessExitError

	// ParseError reports an undecodable or malformed message.
	ParseError = sdkerr.ParseError

	// ControlError is an error response to a control request.
	ControlError = sdkerr.ControlError

	// TimeoutError reports a control request that got no response in time.
	TimeoutError = sdkerr.TimeoutError
)
