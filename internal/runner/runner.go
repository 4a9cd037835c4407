// Package runner spawns and supervises the agent process, exposing it as a
// frame transport. It owns the pipes and the process lifecycle; framing
// above the byte level lives in the frame package and protocol state lives
// in the control package.
package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/moonbase-labs/agentclient-go/internal/config"
	"github.com/moonbase-labs/agentclient-go/internal/frame"
	"github.com/moonbase-labs/agentclient-go/internal/launch"
	"github.com/moonbase-labs/agentclient-go/internal/sdkerr"
)

const (
	// maxStderrBuffer caps the retained stderr used for exit diagnostics.
	// The callback still sees every line; only retention stops growing.
	maxStderrBuffer = 10 * 1024 * 1024

	// killGrace is how long Close waits after closing stdin before the
	// process is killed.
	killGrace = 2 * time.Second

	// writeAbandonGrace bounds waiting for a cancelled write to unblock
	// after stdin has been closed under it.
	writeAbandonGrace = time.Second
)

// Runner runs the agent binary as a child process and implements
// config.Transport over its stdio pipes.
type Runner struct {
	log       *slog.Logger
	opts      *config.Options
	prompt    string
	streaming bool

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	stderr      io.ReadCloser
	stdinClosed bool
	closing     bool

	closeOnce sync.Once
	closeErr  error

	cleanup runtime.Cleanup

	exitCh chan struct{}
}

var _ config.Transport = (*Runner)(nil)

// New builds a Runner. In streaming mode stdin stays open for multi-turn
// input; otherwise the prompt rides the command line and the process exits
// after one turn. The process is not spawned until Start.
func New(log *slog.Logger, prompt string, opts *config.Options, streaming bool) *Runner {
	return &Runner{
		log:       log.With("component", "runner"),
		opts:      opts,
		prompt:    prompt,
		streaming: streaming,
		exitCh:    make(chan struct{}),
	}
}

// Start discovers the binary and spawns the process with stdio pipes
// attached. Returns BinaryNotFoundError when discovery fails and
// ConnectionError when the spawn itself does.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return sdkerr.ErrAlreadyConnected
	}

	binPath, err := launch.Discover(ctx, r.opts.BinaryPath)
	if err != nil {
		return err
	}

	args := launch.Args(r.prompt, r.opts, r.streaming)

	cwd := r.opts.Cwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	}

	r.log.Debug("spawning agent process", "path", binPath, "cwd", cwd, "streaming", r.streaming)

	//nolint:gosec // G204: dynamic args are the point of a process transport.
	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Dir = cwd
	cmd.Env = launch.Env(r.opts)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &sdkerr.ConnectionError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &sdkerr.ConnectionError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &sdkerr.ConnectionError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &sdkerr.ConnectionError{Err: fmt.Errorf("start process: %w", err)}
	}

	r.cmd = cmd
	r.stdin = stdin
	r.stdout = stdout
	r.stderr = stderr

	// Leak backstop: if the Runner is dropped without Close, the child is
	// still killed when the runtime collects us.
	r.cleanup = runtime.AddCleanup(r, func(proc *os.Process) {
		_ = proc.Kill()
	}, cmd.Process)

	r.log.Info("agent process started", "pid", cmd.Process.Pid)

	return nil
}

// Frames decodes stdout into envelopes on the returned channel. Malformed
// lines surface as *frame.DecodeError on the error channel and do not stop
// the stream. Both channels close when the process output ends; an
// unexpected exit additionally delivers a ProcessExitError carrying the
// buffered stderr.
func (r *Runner) Frames(ctx context.Context) (<-chan *frame.Envelope, <-chan error) {
	frames := make(chan *frame.Envelope)
	errs := make(chan error, 1)

	r.mu.Lock()
	stdout, stderr := r.stdout, r.stderr
	r.mu.Unlock()

	if stdout == nil {
		close(frames)
		errs <- sdkerr.ErrTransportNotStarted
		close(errs)

		return frames, errs
	}

	var (
		stderrWg  sync.WaitGroup
		stderrMu  sync.Mutex
		stderrBuf strings.Builder
	)

	// Stderr is always drained: exit diagnostics need it, and leaving the
	// pipe full can wedge the child. Relies on process death to close the
	// pipe and unblock the read.
	stderrWg.Go(func() {
		r.drainStderr(ctx, stderr, &stderrMu, &stderrBuf)
	})

	go func() {
		defer close(frames)
		defer close(errs)
		defer close(r.exitCh)

		maxLine := r.opts.MaxBufferSize
		dec := frame.NewDecoder(stdout, maxLine)

		for {
			env, err := dec.Next()
			if err != nil {
				if stderrors.Is(err, io.EOF) {
					break
				}

				var decErr *frame.DecodeError
				if stderrors.As(err, &decErr) {
					r.log.Debug("skipping malformed output line", "error", decErr.Err)

					select {
					case errs <- decErr:
					case <-ctx.Done():
						return
					}

					continue
				}

				// Scanner failure is terminal for the stream.
				r.log.Error("output stream failed", "error", err)
				errs <- fmt.Errorf("read process output: %w", err)

				break
			}

			select {
			case frames <- env:
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}

		stderrWg.Wait()
		r.reapProcess(errs, &stderrMu, &stderrBuf)
	}()

	return frames, errs
}

// drainStderr reads stderr lines, retaining up to maxStderrBuffer for exit
// diagnostics and feeding each line to the configured callback.
func (r *Runner) drainStderr(ctx context.Context, rd io.Reader, mu *sync.Mutex, buf *strings.Builder) {
	dec := frame.NewLineReader(rd)

	for {
		line, err := dec.Next()
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		mu.Lock()

		if buf.Len() < maxStderrBuffer {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}

			buf.WriteString(line)
		}

		mu.Unlock()

		if r.opts.Stderr != nil {
			r.opts.Stderr(line)
		}
	}
}

// reapProcess waits for the child and reports abnormal exits. Shutdown
// initiated by Close is not an error.
func (r *Runner) reapProcess(errs chan<- error, mu *sync.Mutex, buf *strings.Builder) {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()

	if cmd == nil {
		return
	}

	err := cmd.Wait()

	r.mu.Lock()
	closing := r.closing
	r.mu.Unlock()

	if err == nil {
		r.log.Info("agent process exited cleanly")

		return
	}

	if closing {
		r.log.Debug("agent process terminated during shutdown")

		return
	}

	exitCode := 0

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	mu.Lock()
	captured := strings.TrimSpace(buf.String())
	mu.Unlock()

	r.log.Error("agent process exited abnormally", "exit_code", exitCode)

	errs <- &sdkerr.ProcessExitError{
		ExitCode: exitCode,
		Stderr:   captured,
		Err:      err,
	}
}

// Write sends a single frame to the process. The payload gains a trailing
// newline when missing. Safe for concurrent use; a context cancellation
// during a blocked write closes stdin to unblock it, after which the
// transport no longer accepts input.
func (r *Runner) Write(ctx context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stdin == nil {
		return sdkerr.ErrTransportNotStarted
	}

	if r.stdinClosed {
		return sdkerr.ErrInputClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Copy rather than append so a caller's slice with spare capacity is
	// never mutated.
	if len(data) == 0 || data[len(data)-1] != '\n' {
		framed := make([]byte, len(data)+1)
		copy(framed, data)
		framed[len(data)] = '\n'
		data = framed
	}

	done := make(chan error, 1)

	stdin := r.stdin
	go func() {
		_, err := stdin.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write to process stdin: %w", err)
		}

		return nil
	case <-ctx.Done():
		// Closing stdin is the only way to unblock the write.
		_ = r.stdin.Close()
		r.stdinClosed = true

		select {
		case <-done:
		case <-time.After(writeAbandonGrace):
			r.log.Warn("abandoned write did not unblock after stdin close")
		}

		return ctx.Err()
	}
}

// EndInput closes stdin, signalling the process that no further input is
// coming. The process finishes pending work and exits on its own.
func (r *Runner) EndInput() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stdin == nil || r.stdinClosed {
		return nil
	}

	r.log.Debug("closing process stdin")

	err := r.stdin.Close()
	r.stdinClosed = true

	return err
}

// Ready reports whether the process is running with stdin open.
func (r *Runner) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cmd != nil && r.cmd.Process != nil && r.stdin != nil && !r.stdinClosed
}

// Close shuts the process down: stdin is closed, the process gets a short
// grace period to exit, and is killed if it does not. Idempotent; later
// calls return the first outcome.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.shutdown()
	})

	return r.closeErr
}

func (r *Runner) shutdown() error {
	r.mu.Lock()

	r.closing = true

	if r.stdin != nil && !r.stdinClosed {
		_ = r.stdin.Close()
		r.stdinClosed = true
	}

	cmd := r.cmd
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Give the process a chance to exit on EOF before killing it. exitCh
	// closes when the read loop observes end of output; when Frames was
	// never consumed the timer alone bounds the wait.
	select {
	case <-r.exitCh:
	case <-time.After(killGrace):
		r.log.Debug("grace period elapsed, killing process", "pid", cmd.Process.Pid)
	}

	r.cleanup.Stop()

	if err := cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %d: %w", cmd.Process.Pid, err)
	}

	return nil
}
