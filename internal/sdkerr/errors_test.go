package sdkerr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypedErrors_Unwrap(t *testing.T) {
	cause := errors.New("pipe broke")

	require.ErrorIs(t, &ConnectionError{Err: cause}, cause)
	require.ErrorIs(t, &ProcessExitError{ExitCode: 1, Err: cause}, cause)
	require.ErrorIs(t, &ParseError{Reason: "bad payload", Err: cause}, cause)
}

func TestTypedErrors_Messages(t *testing.T) {
	require.Contains(t,
		(&BinaryNotFoundError{SearchedPaths: []string{"/usr/bin/agent"}}).Error(),
		"/usr/bin/agent")

	require.Contains(t,
		(&ProcessExitError{ExitCode: 2, Stderr: "out of memory"}).Error(),
		"out of memory")

	require.Contains(t,
		(&ControlError{RequestID: "req_1", Message: "denied"}).Error(),
		"req_1")

	require.Contains(t,
		(&TimeoutError{Duration: 5 * time.Second}).Error(),
		"5s")
}

func TestProcessExitError_PrefersStderr(t *testing.T) {
	err := &ProcessExitError{ExitCode: 1, Stderr: "diagnostic", Err: errors.New("exit status 1")}
	require.Contains(t, err.Error(), "diagnostic")

	bare := &ProcessExitError{ExitCode: 1, Err: errors.New("exit status 1")}
	require.Contains(t, bare.Error(), "exit status 1")
}
