// Package control implements the correlated request/response sub-protocol
// multiplexed over the frame stream. The Conduit owns the read loop: it
// resolves responses to host-issued requests, dispatches process-issued
// requests to registered handlers, honors cancellation, and forwards plain
// event messages to the consumer.
package control

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/moonbase-labs/agentclient-go/internal/config"
	"github.com/moonbase-labs/agentclient-go/internal/frame"
	"github.com/moonbase-labs/agentclient-go/internal/sdkerr"
)

// DefaultCallTimeout bounds a Call when the caller passes no explicit
// timeout. Generous because some control operations wait on user-facing
// work in the process.
const DefaultCallTimeout = 300 * time.Second

// Handler services one process-issued control request. requestID is the
// peer's correlation id; the returned payload becomes the success response
// body. An error (or a cancelled ctx) produces an error response instead.
type Handler func(ctx context.Context, requestID string, request map[string]any) (map[string]any, error)

// callResult is the resolution of one host-issued request.
type callResult struct {
	payload map[string]any
	err     error
}

// inboundOp tracks a process-issued request being handled, so a later
// cancel frame can reach it.
type inboundOp struct {
	subtype   string
	cancel    context.CancelFunc
	completed bool
}

// Conduit multiplexes the control sub-protocol over a Transport.
type Conduit struct {
	log       *slog.Logger
	transport config.Transport
	timeout   time.Duration

	pendingMu sync.Mutex
	pending   map[string]chan *callResult

	inFlightMu sync.Mutex
	inFlight   map[string]*inboundOp

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	// Event messages forwarded to the consumer. Buffered so frames arriving
	// during initialization do not stall the read loop.
	events chan *frame.Envelope

	errMu    sync.Mutex
	fatalErr error

	stopped   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New builds a Conduit over transport. callTimeout <= 0 selects
// DefaultCallTimeout. Run must be called before Call.
func New(log *slog.Logger, transport config.Transport, callTimeout time.Duration) *Conduit {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	return &Conduit{
		log:       log.With("component", "control"),
		transport: transport,
		timeout:   callTimeout,
		pending:   make(map[string]chan *callResult, 8),
		inFlight:  make(map[string]*inboundOp, 8),
		handlers:  make(map[string]Handler, 8),
		events:    make(chan *frame.Envelope, 100),
		done:      make(chan struct{}),
	}
}

// Handle registers a handler for a process-issued request subtype.
// Registering the same subtype again replaces the previous handler.
// All registrations must happen before Run.
func (c *Conduit) Handle(subtype string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.handlers[subtype] = h
}

// Run starts the read loop. It returns immediately; the loop stops when the
// transport stream ends, a fatal transport error arrives, the context is
// cancelled, or Stop is called.
func (c *Conduit) Run(ctx context.Context) {
	frames, errs := c.transport.Frames(ctx)

	c.wg.Add(1)

	go c.readLoop(ctx, frames, errs)
}

// Stop shuts the conduit down: the read loop is signalled, in-flight inbound
// handlers are cancelled, and all goroutines are awaited. Safe to call more
// than once.
func (c *Conduit) Stop() {
	c.stopped.Store(true)
	c.closeDone()
	c.cancelInbound()
	c.wg.Wait()
}

// Events returns the stream of non-control messages. The channel closes
// when the conduit stops; check Err afterwards for the cause.
func (c *Conduit) Events() <-chan *frame.Envelope {
	return c.events
}

// Done closes when the conduit has stopped for any reason.
func (c *Conduit) Done() <-chan struct{} {
	return c.done
}

// Err reports the fatal error that stopped the conduit, if any.
func (c *Conduit) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	return c.fatalErr
}

// Call sends a control request and blocks for its response. timeout <= 0
// selects the conduit default. The returned map is the success payload;
// an error response surfaces as *sdkerr.ControlError, and no response
// within the window as *sdkerr.TimeoutError.
func (c *Conduit) Call(
	ctx context.Context,
	subtype string,
	payload map[string]any,
	timeout time.Duration,
) (map[string]any, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	requestID := newRequestID()

	resultCh := make(chan *callResult, 1)

	c.pendingMu.Lock()
	c.pending[requestID] = resultCh
	c.pendingMu.Unlock()

	c.log.Debug("sending control request", "request_id", requestID, "subtype", subtype)

	data, err := frame.EncodeControlRequest(requestID, subtype, payload)
	if err != nil {
		c.forget(requestID)

		return nil, fmt.Errorf("encode control request: %w", err)
	}

	if err := c.transport.Write(ctx, data); err != nil {
		c.forget(requestID)

		return nil, fmt.Errorf("send control request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if result.err != nil {
			c.log.Warn("control request failed", "request_id", requestID, "error", result.err)

			return nil, result.err
		}

		return result.payload, nil

	case <-timer.C:
		c.forget(requestID)
		c.log.Warn("control request timed out", "request_id", requestID, "subtype", subtype, "timeout", timeout)

		return nil, &sdkerr.TimeoutError{Duration: timeout}

	case <-c.done:
		c.forget(requestID)

		if err := c.Err(); err != nil {
			return nil, fmt.Errorf("transport failed: %w", err)
		}

		// A deliberate Stop and the peer closing the stream are different
		// failures to the caller.
		if c.stopped.Load() {
			return nil, sdkerr.ErrConduitStopped
		}

		return nil, sdkerr.ErrConnectionClosed

	case <-ctx.Done():
		c.forget(requestID)

		return nil, ctx.Err()
	}
}

// forget abandons a pending request so a late response is dropped rather
// than delivered.
func (c *Conduit) forget(requestID string) {
	c.pendingMu.Lock()
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
}

func (c *Conduit) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Conduit) setFatal(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

func (c *Conduit) readLoop(ctx context.Context, frames <-chan *frame.Envelope, errs <-chan error) {
	defer c.wg.Done()
	defer close(c.events)
	defer c.closeDone()

	for {
		select {
		case env, ok := <-frames:
			if !ok {
				return
			}

			c.route(ctx, env)

		case err, ok := <-errs:
			if !ok {
				return
			}

			if err == nil {
				continue
			}

			// Malformed lines are skipped; anything else stops the session.
			var decErr *frame.DecodeError
			if stderrors.As(err, &decErr) {
				c.log.Warn("ignoring malformed frame", "error", decErr.Err)

				continue
			}

			c.setFatal(err)

			return

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (c *Conduit) route(ctx context.Context, env *frame.Envelope) {
	switch env.Kind {
	case frame.KindControlResponse:
		c.resolve(env.Data)

	case frame.KindControlRequest:
		c.dispatch(ctx, env.Data)

	case frame.KindControlCancel:
		c.cancelOne(ctx, env.Data)

	default:
		select {
		case c.events <- env:
		case <-c.done:
		case <-ctx.Done():
		}
	}
}

// resolve claims the pending request for an inbound response and delivers
// exactly one outcome to its waiter. A response with no waiter is a late or
// duplicate arrival and is dropped.
func (c *Conduit) resolve(data map[string]any) {
	body, ok := data["response"].(map[string]any)
	if !ok {
		c.log.Warn("control response missing body")

		return
	}

	requestID, ok := body["request_id"].(string)
	if !ok {
		c.log.Warn("control response missing request_id")

		return
	}

	c.pendingMu.Lock()

	resultCh, exists := c.pending[requestID]
	if exists {
		delete(c.pending, requestID)
	}

	c.pendingMu.Unlock()

	if !exists {
		c.log.Warn("dropping response with no pending request", "request_id", requestID)

		return
	}

	subtype, _ := body["subtype"].(string)
	if subtype == "error" {
		message, _ := body["error"].(string)
		resultCh <- &callResult{err: &sdkerr.ControlError{RequestID: requestID, Message: message}}

		return
	}

	payload, _ := body["response"].(map[string]any)
	resultCh <- &callResult{payload: payload}
}

// dispatch runs the handler for a process-issued request in its own
// goroutine so the read loop stays free to observe cancel frames.
func (c *Conduit) dispatch(ctx context.Context, data map[string]any) {
	requestID, ok := data["request_id"].(string)
	if !ok {
		c.log.Warn("inbound control request missing request_id")

		return
	}

	request, ok := data["request"].(map[string]any)
	if !ok {
		c.log.Warn("inbound control request missing request body", "request_id", requestID)
		c.respondError(ctx, requestID, "malformed control request")

		return
	}

	subtype, _ := request["subtype"].(string)

	c.handlersMu.RLock()
	handler, exists := c.handlers[subtype]
	c.handlersMu.RUnlock()

	if !exists {
		c.log.Warn("no handler for control request", "subtype", subtype)
		c.respondError(ctx, requestID, fmt.Sprintf("unsupported request subtype: %s", subtype))

		return
	}

	opCtx, cancel := context.WithCancel(ctx)

	op := &inboundOp{subtype: subtype, cancel: cancel}

	c.inFlightMu.Lock()
	c.inFlight[requestID] = op
	c.inFlightMu.Unlock()

	c.wg.Go(func() {
		defer func() {
			c.inFlightMu.Lock()
			op.completed = true
			delete(c.inFlight, requestID)
			c.inFlightMu.Unlock()

			cancel()
		}()

		payload, err := handler(opCtx, requestID, request)

		if stderrors.Is(opCtx.Err(), context.Canceled) {
			c.respondError(ctx, requestID, sdkerr.ErrCallbackCancelled.Error())

			return
		}

		if err != nil {
			c.log.Warn("control handler failed", "request_id", requestID, "subtype", subtype, "error", err)
			c.respondError(ctx, requestID, err.Error())

			return
		}

		c.respondSuccess(ctx, requestID, payload)
	})
}

// cancelOne handles a cancel frame for an in-flight inbound request. The
// cancel is acknowledged whether or not the target is still running.
func (c *Conduit) cancelOne(ctx context.Context, data map[string]any) {
	requestID, ok := data["request_id"].(string)
	if !ok {
		c.log.Warn("cancel frame missing request_id")

		return
	}

	c.inFlightMu.Lock()

	op, exists := c.inFlight[requestID]

	alreadyDone := !exists || op.completed
	if exists && !op.completed {
		op.cancel()
	}

	c.inFlightMu.Unlock()

	c.log.Debug("cancel processed", "request_id", requestID, "found", exists, "already_completed", alreadyDone)

	ack, err := frame.EncodeCancelAck(requestID, exists, alreadyDone)
	if err != nil {
		c.log.Error("encode cancel acknowledgment failed", "error", err)

		return
	}

	if err := c.transport.Write(ctx, ack); err != nil && ctx.Err() == nil {
		c.log.Error("send cancel acknowledgment failed", "error", err)
	}
}

func (c *Conduit) cancelInbound() {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()

	for _, op := range c.inFlight {
		if !op.completed {
			op.cancel()
		}
	}
}

func (c *Conduit) respondSuccess(ctx context.Context, requestID string, payload map[string]any) {
	data, err := frame.EncodeSuccessResponse(requestID, payload)
	if err != nil {
		c.log.Error("encode control response failed", "error", err)

		return
	}

	if err := c.transport.Write(ctx, data); err != nil && ctx.Err() == nil {
		c.log.Error("send control response failed", "error", err)
	}
}

func (c *Conduit) respondError(ctx context.Context, requestID, message string) {
	data, err := frame.EncodeErrorResponse(requestID, message)
	if err != nil {
		c.log.Error("encode error response failed", "error", err)

		return
	}

	if err := c.transport.Write(ctx, data); err != nil && ctx.Err() == nil {
		c.log.Error("send error response failed", "error", err)
	}
}

// newRequestID issues a host-side correlation id. The req_ prefix keeps the
// host namespace disjoint from ids minted by the process.
func newRequestID() string {
	return "req_" + ulid.Make().String()
}
