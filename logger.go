package agentclient

import (
	"io"
	"log/slog"
)

// NopLogger returns a logger that discards all output. Sessions without
// WithLogger use it.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
