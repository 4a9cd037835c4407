package agentclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moonbase-labs/agentclient-go/internal/config"
	"github.com/moonbase-labs/agentclient-go/internal/control"
	"github.com/moonbase-labs/agentclient-go/internal/frame"
	"github.com/moonbase-labs/agentclient-go/internal/runner"
	"github.com/moonbase-labs/agentclient-go/internal/sdkerr"
)

const (
	// messageBuffer is the capacity of the parsed message channel.
	messageBuffer = 10

	// Per-operation control timeouts. Interrupt and the setters are quick
	// state flips in the process; rewind and status queries touch disk or
	// remote servers and get more room.
	interruptTimeout   = 5 * time.Second
	setPermissionsTime = 5 * time.Second
	setModelTimeout    = 5 * time.Second
	rewindTimeout      = 10 * time.Second
	statusTimeout      = 10 * time.Second
)

// ServerStatus is one tool server's connection state.
type ServerStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ToolServerStatus reports the state of every configured tool server.
type ToolServerStatus struct {
	Servers []ServerStatus `json:"mcpServers"`
}

// Client is an interactive, stateful session with the agent process.
//
// Clients are single-use: after Close, build a new one with NewClient.
// The message stream has exactly one consumer; a second concurrent
// ReceiveMessages or ReceiveResponse fails with ErrReceiverBusy.
type Client struct {
	log        *slog.Logger
	opts       *Options
	transport  config.Transport
	conduit    *control.Conduit
	dispatcher *dispatcher

	messages  chan Message
	receiving atomic.Bool

	errMu    sync.Mutex
	fatalErr error

	eg *errgroup.Group

	mu        sync.Mutex
	connected bool
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a disconnected client. Call Connect to start the
// session.
func NewClient() *Client {
	return &Client{
		messages: make(chan Message, messageBuffer),
		done:     make(chan struct{}),
	}
}

// Connect spawns the agent process (or starts the injected transport),
// wires up the control protocol, and performs the initialize handshake when
// hooks, callbacks, tool servers, or agents are configured.
func (c *Client) Connect(ctx context.Context, opts ...Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return sdkerr.ErrSessionClosed
	}

	if c.connected {
		return sdkerr.ErrAlreadyConnected
	}

	if err := c.connect(ctx, buildOptions(opts)); err != nil {
		return err
	}

	// The read loop lives on a background context: the caller's ctx often
	// carries a connect timeout that must not tear down the session later.
	var egCtx context.Context

	c.eg, egCtx = errgroup.WithContext(context.Background())

	c.eg.Go(func() error {
		return c.pumpMessages(egCtx)
	})

	c.connected = true
	c.log.Info("session connected")

	return nil
}

// ConnectWithPrompt connects and immediately sends prompt to the default
// session.
func (c *Client) ConnectWithPrompt(ctx context.Context, prompt string, opts ...Option) error {
	if err := c.Connect(ctx, opts...); err != nil {
		return err
	}

	return c.Query(ctx, prompt)
}

// ConnectWithStream connects and feeds turns to the process from an
// iterator. Input ends when the iterator does.
func (c *Client) ConnectWithStream(ctx context.Context, turns iter.Seq[Turn], opts ...Option) error {
	if err := c.Connect(ctx, opts...); err != nil {
		return err
	}

	c.eg.Go(func() error {
		return c.streamTurns(ctx, turns)
	})

	return nil
}

func (c *Client) connect(ctx context.Context, opts *Options) error {
	log := opts.Logger
	if log == nil {
		log = NopLogger()
	}

	c.log = log.With("component", "client")

	if opts.CanUseTool != nil {
		if opts.PermissionPromptToolName != "" {
			return fmt.Errorf("CanUseTool cannot be combined with PermissionPromptToolName")
		}

		// Permission checks ride the control channel.
		opts.PermissionPromptToolName = "stdio"
	}

	c.opts = opts

	transport := opts.Transport
	if transport == nil {
		transport = runner.New(log, "", opts, true)
	}

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	c.transport = transport
	c.conduit = control.New(log, transport, opts.ControlTimeout)
	c.dispatcher = newDispatcher(log, c.conduit, opts)
	c.dispatcher.register()
	c.conduit.Run(ctx)

	if opts.NeedsControlProtocol() {
		if err := c.dispatcher.initialize(ctx); err != nil {
			c.conduit.Stop()
			_ = transport.Close()

			return err
		}
	}

	return nil
}

// pumpMessages parses event frames off the conduit into the typed message
// channel. Unknown message types and unparseable frames are skipped; only
// transport failures end the session.
func (c *Client) pumpMessages(ctx context.Context) error {
	defer close(c.messages)

	events := c.conduit.Events()

	for {
		select {
		case env, ok := <-events:
			if !ok {
				if err := c.conduit.Err(); err != nil {
					c.setFatal(err)

					return err
				}

				return nil
			}

			msg, err := parseMessage(c.log, env.Data)
			if stderrors.Is(err, sdkerr.ErrUnknownMessageType) {
				continue
			}

			// One bad frame must not take down an interactive session; the
			// frames behind it are still good.
			if err != nil {
				c.log.Warn("skipping unparseable message", "error", err)

				continue
			}

			select {
			case c.messages <- msg:
			case <-c.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}

		case <-c.done:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) streamTurns(ctx context.Context, turns iter.Seq[Turn]) (err error) {
	defer func() {
		if endErr := c.transport.EndInput(); endErr != nil && err == nil {
			err = fmt.Errorf("end input: %w", endErr)
		}
	}()

	for turn := range turns {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}

		if err := c.transport.Write(ctx, data); err != nil {
			return fmt.Errorf("send turn: %w", err)
		}
	}

	return nil
}

// Query sends a user prompt and returns once it is written. Responses
// arrive via ReceiveMessages or ReceiveResponse. The optional sessionID
// addresses a named session; it defaults to "default".
func (c *Client) Query(ctx context.Context, prompt string, sessionID ...string) error {
	if !c.isConnected() {
		return sdkerr.ErrNotConnected
	}

	sid := ""
	if len(sessionID) > 0 {
		sid = sessionID[0]
	}

	data, err := frame.EncodeUserTurn(prompt, sid)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	return c.transport.Write(ctx, data)
}

// receive returns the next message, io.EOF at normal end of stream, or the
// fatal session error.
func (c *Client) receive(ctx context.Context) (Message, error) {
	if err := c.getFatal(); err != nil {
		return nil, err
	}

	select {
	case msg, ok := <-c.messages:
		if !ok {
			if c.eg != nil {
				if err := c.eg.Wait(); err != nil {
					c.setFatal(err)

					return nil, err
				}
			}

			return nil, io.EOF
		}

		return msg, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReceiveMessages yields messages until the session ends. Only one
// consumer may be active at a time.
func (c *Client) ReceiveMessages(ctx context.Context) iter.Seq2[Message, error] {
	return c.stream(ctx, false)
}

// ReceiveResponse yields messages for the current turn and stops after the
// ResultMessage. Only one consumer may be active at a time.
func (c *Client) ReceiveResponse(ctx context.Context) iter.Seq2[Message, error] {
	return c.stream(ctx, true)
}

func (c *Client) stream(ctx context.Context, stopAtResult bool) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		if !c.isConnected() {
			yield(nil, sdkerr.ErrNotConnected)

			return
		}

		if !c.receiving.CompareAndSwap(false, true) {
			yield(nil, sdkerr.ErrReceiverBusy)

			return
		}
		defer c.receiving.Store(false)

		for {
			msg, err := c.receive(ctx)
			if err != nil {
				yield(nil, err)

				return
			}

			if !yield(msg, nil) {
				return
			}

			if stopAtResult {
				if _, ok := msg.(*ResultMessage); ok {
					return
				}
			}
		}
	}
}

// Interrupt stops the agent's current turn.
func (c *Client) Interrupt(ctx context.Context) error {
	if !c.isConnected() {
		return sdkerr.ErrNotConnected
	}

	c.log.Info("interrupting current turn")

	if _, err := c.conduit.Call(ctx, "interrupt", nil, interruptTimeout); err != nil {
		return fmt.Errorf("interrupt: %w", err)
	}

	return nil
}

// SetPermissionMode changes the permission mode mid-conversation. Legacy
// mode aliases are normalized before sending.
func (c *Client) SetPermissionMode(ctx context.Context, mode string) error {
	if !c.isConnected() {
		return sdkerr.ErrNotConnected
	}

	mode = config.NormalizePermissionMode(mode)

	payload := map[string]any{"mode": mode}
	if _, err := c.conduit.Call(ctx, "set_permission_mode", payload, setPermissionsTime); err != nil {
		return fmt.Errorf("set permission mode %q: %w", mode, err)
	}

	return nil
}

// SetModel changes the model mid-conversation. An empty model reverts to
// the process default.
func (c *Client) SetModel(ctx context.Context, model string) error {
	if !c.isConnected() {
		return sdkerr.ErrNotConnected
	}

	payload := map[string]any{"model": nil}
	if model != "" {
		payload["model"] = model
	}

	if _, err := c.conduit.Call(ctx, "set_model", payload, setModelTimeout); err != nil {
		return fmt.Errorf("set model: %w", err)
	}

	return nil
}

// RewindFiles restores tracked files to their state at a previous user
// message. Requires WithFileCheckpointing.
func (c *Client) RewindFiles(ctx context.Context, userMessageID string) error {
	if !c.isConnected() {
		return sdkerr.ErrNotConnected
	}

	payload := map[string]any{"user_message_id": userMessageID}
	if _, err := c.conduit.Call(ctx, "rewind_files", payload, rewindTimeout); err != nil {
		return fmt.Errorf("rewind files: %w", err)
	}

	return nil
}

// ServerStatuses queries the process for tool server connection states.
// In-process servers are appended as connected, since the process does not
// own them.
func (c *Client) ServerStatuses(ctx context.Context) (*ToolServerStatus, error) {
	if !c.isConnected() {
		return nil, sdkerr.ErrNotConnected
	}

	payload, err := c.conduit.Call(ctx, "mcp_status", nil, statusTimeout)
	if err != nil {
		return nil, fmt.Errorf("server status: %w", err)
	}

	status, err := remarshal[ToolServerStatus](payload)
	if err != nil {
		return nil, fmt.Errorf("decode server status: %w", err)
	}

	for name := range c.opts.ToolServers {
		status.Servers = append(status.Servers, ServerStatus{Name: name, Status: "connected"})
	}

	return status, nil
}

// ServerInfo returns the initialize handshake result, or nil before the
// handshake (or when no control protocol was needed).
func (c *Client) ServerInfo() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dispatcher == nil {
		return nil
	}

	return c.dispatcher.serverInfo()
}

// Close ends the session and releases the process. Safe to call multiple
// times; the client cannot be reused afterwards.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		wasConnected := c.connected
		c.connected = false
		c.mu.Unlock()

		if !wasConnected {
			return
		}

		c.log.Info("closing session")
		close(c.done)

		c.conduit.Stop()
		closeErr = c.transport.Close()

		if c.eg != nil {
			if err := c.eg.Wait(); err != nil && closeErr == nil &&
				!stderrors.Is(err, context.Canceled) {
				closeErr = err
			}
		}
	})

	return closeErr
}

func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

func (c *Client) setFatal(err error) {
	if err == nil {
		return
	}

	c.errMu.Lock()
	defer c.errMu.Unlock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}
}

func (c *Client) getFatal() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	return c.fatalErr
}
