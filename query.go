package agentclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moonbase-labs/agentclient-go/internal/config"
	"github.com/moonbase-labs/agentclient-go/internal/control"
	"github.com/moonbase-labs/agentclient-go/internal/runner"
	"github.com/moonbase-labs/agentclient-go/internal/sdkerr"
)

// defaultResultWaitTimeout bounds how long QueryStream keeps stdin open
// after the last input turn, waiting for the result when callbacks are in
// play.
const defaultResultWaitTimeout = 60 * time.Second

func resultWaitTimeout() time.Duration {
	if raw := os.Getenv("AGENT_CLIENT_STREAM_CLOSE_TIMEOUT"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return defaultResultWaitTimeout
}

func validateOptions(opts *Options) error {
	if opts.CanUseTool != nil {
		if opts.PermissionPromptToolName != "" {
			return fmt.Errorf("CanUseTool cannot be combined with PermissionPromptToolName")
		}

		opts.PermissionPromptToolName = "stdio"
	}

	return nil
}

func componentLogger(opts *Options, component string) *slog.Logger {
	log := opts.Logger
	if log == nil {
		log = NopLogger()
	}

	return log.With("component", component)
}

// Query runs one prompt to completion and yields the resulting messages.
//
// Errors are yielded inline: parse failures of single messages let
// iteration continue, while transport failures and context cancellation
// end it. Break out of the loop to stop early.
//
//	for msg, err := range agentclient.Query(ctx, "describe this repo") {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    switch m := msg.(type) {
//	    case *agentclient.AssistantMessage:
//	        fmt.Print(m.Text())
//	    case *agentclient.ResultMessage:
//	        // final accounting
//	    }
//	}
func Query(ctx context.Context, prompt string, opts ...Option) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		options := buildOptions(opts)

		if err := validateOptions(options); err != nil {
			yield(nil, err)

			return
		}

		// One-shot mode cannot answer callbacks arriving mid-turn; those
		// sessions run over the streaming transport instead.
		if options.NeedsControlProtocol() {
			for msg, err := range queryStreamWithOptions(ctx, SingleTurn(prompt), options) {
				if !yield(msg, err) {
					return
				}
			}

			return
		}

		log := componentLogger(options, "query")

		transport := options.Transport
		if transport == nil {
			transport = runner.New(log, prompt, options, false)
		}

		if err := transport.Start(ctx); err != nil {
			yield(nil, err)

			return
		}

		defer transport.Close()

		conduit := control.New(log, transport, options.ControlTimeout)
		conduit.Run(ctx)

		defer conduit.Stop()

		// The process in one-shot mode waits for stdin to close before it
		// starts working.
		if err := transport.EndInput(); err != nil {
			yield(nil, fmt.Errorf("close input: %w", err))

			return
		}

		drainEvents(ctx, log, conduit, yield, nil)
	}
}

// QueryStream runs a conversation fed by an input iterator and yields the
// resulting messages. Input ends when the iterator does; when callbacks are
// configured, stdin stays open until the result arrives so late callback
// traffic is not cut off.
func QueryStream(ctx context.Context, turns iter.Seq[Turn], opts ...Option) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		options := buildOptions(opts)

		if err := validateOptions(options); err != nil {
			yield(nil, err)

			return
		}

		for msg, err := range queryStreamWithOptions(ctx, turns, options) {
			if !yield(msg, err) {
				return
			}
		}
	}
}

func queryStreamWithOptions(ctx context.Context, turns iter.Seq[Turn], options *Options) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		log := componentLogger(options, "query_stream")

		transport := options.Transport
		if transport == nil {
			transport = runner.New(log, "", options, true)
		}

		if err := transport.Start(ctx); err != nil {
			yield(nil, err)

			return
		}

		defer transport.Close()

		conduit := control.New(log, transport, options.ControlTimeout)
		disp := newDispatcher(log, conduit, options)
		disp.register()
		conduit.Run(ctx)

		defer conduit.Stop()

		if err := disp.initialize(ctx); err != nil {
			yield(nil, err)

			return
		}

		// With callbacks in play the process may still need the channel
		// after the last input turn, so hold stdin open until the result.
		awaitResult := options.NeedsControlProtocol()

		var (
			resultCh   chan struct{}
			resultOnce sync.Once
		)

		if awaitResult {
			resultCh = make(chan struct{})
		}

		signalResult := func() {
			if resultCh != nil {
				resultOnce.Do(func() { close(resultCh) })
			}
		}

		g, gCtx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return feedTurns(gCtx, log, transport, turns, resultCh)
		})

		alive := drainEvents(ctx, log, conduit, yield, signalResult)

		// Release the feeder before waiting on it, then surface its first
		// error; a failed turn write would otherwise vanish silently.
		signalResult()

		if err := g.Wait(); err != nil && alive {
			yield(nil, err)
		}
	}
}

// feedTurns writes each input turn and then ends input, first waiting for
// resultCh (when non-nil) so callback traffic can finish.
func feedTurns(
	ctx context.Context,
	log *slog.Logger,
	transport config.Transport,
	turns iter.Seq[Turn],
	resultCh <-chan struct{},
) (err error) {
	defer func() {
		if endErr := transport.EndInput(); endErr != nil && err == nil {
			err = fmt.Errorf("end input: %w", endErr)
		}
	}()

	for turn := range turns {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}

		if err := transport.Write(ctx, data); err != nil {
			return fmt.Errorf("send turn: %w", err)
		}
	}

	if resultCh != nil {
		select {
		case <-resultCh:
		case <-time.After(resultWaitTimeout()):
			log.Warn("no result before input close timeout", "timeout", resultWaitTimeout())
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// drainEvents pumps conduit events through the parser into yield until the
// stream ends. onResult, when set, fires at the first ResultMessage. The
// return reports whether the consumer is still accepting yields.
//
// End of stream is detected only through the events channel closing, never
// through the conduit's done signal: a closed channel still drains its
// buffer, so messages read just before EOF, including the terminal result,
// are delivered rather than raced against shutdown.
func drainEvents(
	ctx context.Context,
	log *slog.Logger,
	conduit *control.Conduit,
	yield func(Message, error) bool,
	onResult func(),
) bool {
	events := conduit.Events()

	for {
		select {
		case env, ok := <-events:
			if !ok {
				if err := conduit.Err(); err != nil {
					return yield(nil, err)
				}

				return true
			}

			msg, err := parseMessage(log, env.Data)
			if stderrors.Is(err, sdkerr.ErrUnknownMessageType) {
				continue
			}

			if err != nil {
				if !yield(nil, err) {
					return false
				}

				continue
			}

			if onResult != nil {
				if _, ok := msg.(*ResultMessage); ok {
					onResult()
				}
			}

			if !yield(msg, nil) {
				return false
			}

		case <-ctx.Done():
			yield(nil, ctx.Err())

			return false
		}
	}
}
