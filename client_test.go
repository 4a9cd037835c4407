package agentclient

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moonbase-labs/agentclient-go/internal/frame"
	"github.com/moonbase-labs/agentclient-go/internal/sdkerr"
)

// fakeTransport implements Transport in-memory. Frames pushed with emit
// appear on the session's inbound stream; every Write lands on the wrote
// channel decoded.
type fakeTransport struct {
	mu         sync.Mutex
	started    bool
	inputEnded bool
	closed     bool

	// turnWriteErr, when set before the session starts, fails every
	// user-turn write while letting control traffic through.
	turnWriteErr error

	frames chan *frame.Envelope
	errs   chan error
	wrote  chan map[string]any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan *frame.Envelope, 32),
		errs:   make(chan error, 4),
		wrote:  make(chan map[string]any, 32),
	}
}

func (f *fakeTransport) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.started = true

	return nil
}

func (f *fakeTransport) Frames(context.Context) (<-chan *frame.Envelope, <-chan error) {
	return f.frames, f.errs
}

func (f *fakeTransport) Write(_ context.Context, data []byte) error {
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	f.mu.Lock()
	turnErr := f.turnWriteErr
	f.mu.Unlock()

	if turnErr != nil && decoded["type"] == "user" {
		return turnErr
	}

	f.wrote <- decoded

	return nil
}

func (f *fakeTransport) EndInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inputEnded = true

	return nil
}

func (f *fakeTransport) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.started && !f.closed
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.frames)
		close(f.errs)
	}

	return nil
}

func (f *fakeTransport) emit(data map[string]any) {
	f.frames <- frame.Classify(data)
}

// nextWrite returns the next frame the session wrote.
func (f *fakeTransport) nextWrite(t *testing.T) map[string]any {
	t.Helper()

	select {
	case data := <-f.wrote:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")

		return nil
	}
}

// respondTo answers the next outbound control request of the given subtype
// with a success payload.
func (f *fakeTransport) respondTo(t *testing.T, subtype string, payload map[string]any) {
	t.Helper()

	sent := f.nextWrite(t)
	require.Equal(t, "control_request", sent["type"])

	request := sent["request"].(map[string]any)
	require.Equal(t, subtype, request["subtype"])

	f.emit(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": sent["request_id"],
			"response":   payload,
		},
	})
}

func connectedClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()

	transport := newFakeTransport()
	client := NewClient()

	opts = append([]Option{WithTransport(transport), WithLogger(testLogger())}, opts...)
	require.NoError(t, client.Connect(context.Background(), opts...))
	t.Cleanup(func() { _ = client.Close() })

	return client, transport
}

func TestClient_ConnectAndQuery(t *testing.T) {
	client, transport := connectedClient(t)

	require.NoError(t, client.Query(context.Background(), "hello"))

	sent := transport.nextWrite(t)
	require.Equal(t, "user", sent["type"])
	require.Equal(t, "default", sent["session_id"])
	require.Equal(t, "hello", sent["message"].(map[string]any)["content"])
}

func TestClient_QueryNamedSession(t *testing.T) {
	client, transport := connectedClient(t)

	require.NoError(t, client.Query(context.Background(), "hi", "research"))
	require.Equal(t, "research", transport.nextWrite(t)["session_id"])
}

func TestClient_ConnectTwice(t *testing.T) {
	client, _ := connectedClient(t)

	err := client.Connect(context.Background(), WithTransport(newFakeTransport()))
	require.ErrorIs(t, err, sdkerr.ErrAlreadyConnected)
}

func TestClient_SingleUse(t *testing.T) {
	client, _ := connectedClient(t)
	require.NoError(t, client.Close())

	err := client.Connect(context.Background(), WithTransport(newFakeTransport()))
	require.ErrorIs(t, err, sdkerr.ErrSessionClosed)
}

func TestClient_QueryBeforeConnect(t *testing.T) {
	client := NewClient()

	require.ErrorIs(t, client.Query(context.Background(), "hi"), sdkerr.ErrNotConnected)
	require.ErrorIs(t, client.Interrupt(context.Background()), sdkerr.ErrNotConnected)
}

func TestClient_ReceiveResponseStopsAtResult(t *testing.T) {
	client, transport := connectedClient(t)

	transport.emit(map[string]any{
		"type":    "assistant",
		"message": map[string]any{"role": "assistant", "model": "m", "content": []any{map[string]any{"type": "text", "text": "hi"}}},
	})
	transport.emit(map[string]any{"type": "result", "subtype": "success", "session_id": "default"})
	transport.emit(map[string]any{
		"type":    "assistant",
		"message": map[string]any{"role": "assistant", "model": "m", "content": []any{}},
	})

	var messages []Message

	for msg, err := range client.ReceiveResponse(context.Background()) {
		require.NoError(t, err)
		messages = append(messages, msg)
	}

	require.Len(t, messages, 2)
	require.IsType(t, &AssistantMessage{}, messages[0])
	require.IsType(t, &ResultMessage{}, messages[1])
}

func TestClient_ReceiveSkipsUnknownTypes(t *testing.T) {
	client, transport := connectedClient(t)

	transport.emit(map[string]any{"type": "future_telemetry", "payload": "x"})
	transport.emit(map[string]any{"type": "result", "subtype": "success"})

	var messages []Message

	for msg, err := range client.ReceiveResponse(context.Background()) {
		require.NoError(t, err)
		messages = append(messages, msg)
	}

	require.Len(t, messages, 1)
	require.IsType(t, &ResultMessage{}, messages[0])
}

func TestClient_ReceiveSurvivesUnparseableFrame(t *testing.T) {
	client, transport := connectedClient(t)

	// A known type with a broken shape is skipped; the session stays up and
	// the frames behind it still come through.
	transport.emit(map[string]any{"type": "user"})
	transport.emit(map[string]any{"type": "result", "subtype": "success"})

	var messages []Message

	for msg, err := range client.ReceiveResponse(context.Background()) {
		require.NoError(t, err)
		messages = append(messages, msg)
	}

	require.Len(t, messages, 1)
	require.IsType(t, &ResultMessage{}, messages[0])
}

func TestClient_SingleReceiver(t *testing.T) {
	client, transport := connectedClient(t)

	firstStarted := make(chan struct{})
	release := make(chan struct{})

	go func() {
		for msg, err := range client.ReceiveMessages(context.Background()) {
			_ = err

			if msg != nil {
				close(firstStarted)
				<-release
			}

			return
		}
	}()

	transport.emit(map[string]any{"type": "result", "subtype": "success"})
	<-firstStarted

	for _, err := range client.ReceiveResponse(context.Background()) {
		require.ErrorIs(t, err, sdkerr.ErrReceiverBusy)

		break
	}

	close(release)
}

func TestClient_NaturalEndOfStreamIsEOF(t *testing.T) {
	client, transport := connectedClient(t)

	transport.emit(map[string]any{"type": "result", "subtype": "success"})

	// Process exit closes the frame stream; the message channel drains and
	// ends with EOF.
	require.NoError(t, transport.Close())

	var (
		messages []Message
		finalErr error
	)

	for msg, err := range client.ReceiveMessages(context.Background()) {
		if err != nil {
			finalErr = err

			break
		}

		messages = append(messages, msg)
	}

	require.Len(t, messages, 1)
	require.ErrorIs(t, finalErr, io.EOF)
}

func TestClient_ReceiveAfterClose(t *testing.T) {
	client, _ := connectedClient(t)
	require.NoError(t, client.Close())

	for _, err := range client.ReceiveMessages(context.Background()) {
		require.ErrorIs(t, err, sdkerr.ErrNotConnected)

		break
	}
}

func TestClient_Interrupt(t *testing.T) {
	client, transport := connectedClient(t)

	errCh := make(chan error, 1)

	go func() { errCh <- client.Interrupt(context.Background()) }()

	transport.respondTo(t, "interrupt", map[string]any{})
	require.NoError(t, <-errCh)
}

func TestClient_SetPermissionModeNormalizes(t *testing.T) {
	client, transport := connectedClient(t)

	errCh := make(chan error, 1)

	go func() { errCh <- client.SetPermissionMode(context.Background(), "acceptAll") }()

	sent := transport.nextWrite(t)
	request := sent["request"].(map[string]any)
	require.Equal(t, "set_permission_mode", request["subtype"])
	require.Equal(t, "bypassPermissions", request["mode"])

	transport.emit(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": sent["request_id"],
			"response":   map[string]any{},
		},
	})

	require.NoError(t, <-errCh)
}

func TestClient_SetModelEmptyRevertsToDefault(t *testing.T) {
	client, transport := connectedClient(t)

	errCh := make(chan error, 1)

	go func() { errCh <- client.SetModel(context.Background(), "") }()

	sent := transport.nextWrite(t)
	request := sent["request"].(map[string]any)
	require.Equal(t, "set_model", request["subtype"])
	require.Contains(t, request, "model")
	require.Nil(t, request["model"])

	transport.emit(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": sent["request_id"],
			"response":   map[string]any{},
		},
	})

	require.NoError(t, <-errCh)
}

func TestClient_ServerStatusesAppendsInProcessServers(t *testing.T) {
	servers := map[string]*ToolServer{"calc": NewToolServer("calc", "1.0.0")}

	transport := newFakeTransport()
	client := NewClient()

	connectErr := make(chan error, 1)

	go func() {
		connectErr <- client.Connect(context.Background(),
			WithTransport(transport), WithLogger(testLogger()), WithToolServers(servers))
	}()

	// Tool servers require the handshake.
	transport.respondTo(t, "initialize", map[string]any{"commands": []any{}})
	require.NoError(t, <-connectErr)

	t.Cleanup(func() { _ = client.Close() })

	statusCh := make(chan *ToolServerStatus, 1)
	errCh := make(chan error, 1)

	go func() {
		status, err := client.ServerStatuses(context.Background())
		statusCh <- status
		errCh <- err
	}()

	transport.respondTo(t, "mcp_status", map[string]any{
		"mcpServers": []any{map[string]any{"name": "remote", "status": "connected"}},
	})

	status := <-statusCh
	require.NoError(t, <-errCh)
	require.Len(t, status.Servers, 2)

	names := map[string]string{}
	for _, s := range status.Servers {
		names[s.Name] = s.Status
	}

	require.Equal(t, "connected", names["remote"])
	require.Equal(t, "connected", names["calc"])
}

func TestClient_ServerInfoAfterHandshake(t *testing.T) {
	transport := newFakeTransport()
	client := NewClient()

	connectErr := make(chan error, 1)

	go func() {
		connectErr <- client.Connect(context.Background(),
			WithTransport(transport), WithLogger(testLogger()),
			WithCanUseTool(func(context.Context, string, map[string]any, *PermissionRequest) (PermissionDecision, error) {
				return &Allow{}, nil
			}))
	}()

	transport.respondTo(t, "initialize", map[string]any{"commands": []any{"interrupt"}})
	require.NoError(t, <-connectErr)

	t.Cleanup(func() { _ = client.Close() })

	info := client.ServerInfo()
	require.NotNil(t, info)
	require.Equal(t, []any{"interrupt"}, info["commands"])
}

func TestClient_CanUseToolConflictsWithPromptTool(t *testing.T) {
	client := NewClient()

	err := client.Connect(context.Background(),
		WithTransport(newFakeTransport()),
		WithCanUseTool(func(context.Context, string, map[string]any, *PermissionRequest) (PermissionDecision, error) {
			return &Allow{}, nil
		}),
		WithPermissionPromptToolName("custom"))

	require.ErrorContains(t, err, "CanUseTool")
}

func TestClient_ConnectWithStream(t *testing.T) {
	transport := newFakeTransport()
	client := NewClient()

	err := client.ConnectWithStream(context.Background(),
		Turns(UserTurn("first"), UserTurn("second")),
		WithTransport(transport), WithLogger(testLogger()))
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	first := transport.nextWrite(t)
	require.Equal(t, "user", first["type"])
	require.Equal(t, "first", first["message"].(map[string]any)["content"])

	second := transport.nextWrite(t)
	require.Equal(t, "second", second["message"].(map[string]any)["content"])

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()

		return transport.inputEnded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_CloseIdempotent(t *testing.T) {
	client, _ := connectedClient(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
