// Package config holds the session configuration read once at connect time,
// plus the hook, permission, and transport contracts it references.
package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/moonbase-labs/agentclient-go/internal/frame"
	"github.com/moonbase-labs/agentclient-go/internal/toolserver"
)

// Transport abstracts the duplex byte channel to the agent process.
// The default implementation spawns a child process; custom transports can
// be injected for testing or remote connections.
type Transport interface {
	// Start spawns the process (or otherwise opens the channel).
	Start(ctx context.Context) error

	// Frames returns the inbound frame stream and its error stream. Decode
	// errors for single lines are reported on the error channel and are not
	// terminal; both channels close when reading ends.
	Frames(ctx context.Context) (<-chan *frame.Envelope, <-chan error)

	// Write sends one frame; a trailing newline is appended when missing.
	// Safe for concurrent use.
	Write(ctx context.Context, data []byte) error

	// EndInput signals that no more input will be sent (closes stdin).
	EndInput() error

	// Ready reports whether the transport can carry traffic.
	Ready() bool

	// Close tears the channel down. Idempotent.
	Close() error
}

// AgentDefinition configures a named subagent, sent to the process in the
// initialize request.
type AgentDefinition struct {
	Description string   `json:"description"`
	Prompt      string   `json:"prompt"`
	Tools       []string `json:"tools,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// Options configures one session. Read once at Connect; never mutated while
// the session runs, so dispatch reads need no locking.
type Options struct {
	// Logger receives protocol-level debug output. Nil disables logging.
	Logger *slog.Logger

	// BinaryPath is the explicit agent binary path. Empty means discovery
	// via PATH and common install locations.
	BinaryPath string

	// Cwd is the working directory for the agent process.
	Cwd string

	// Env adds or overrides environment variables for the agent process.
	Env map[string]string

	// Model selects the model; empty uses the process default.
	Model string

	// FallbackModel is used when the primary model is unavailable.
	FallbackModel string

	// SystemPrompt replaces the default system prompt.
	SystemPrompt string

	// AppendSystemPrompt appends to the default system prompt instead of
	// replacing it. Ignored when SystemPrompt is set.
	AppendSystemPrompt string

	// PermissionMode is the initial permission mode, supplied to the process
	// at connect time. Legacy aliases are normalized.
	PermissionMode string

	// MaxTurns limits conversation turns; zero means no limit.
	MaxTurns int

	// AllowedTools are pre-approved tools that skip permission prompts.
	AllowedTools []string

	// DisallowedTools are blocked outright.
	DisallowedTools []string

	// Hooks maps lifecycle events to ordered matcher lists. For one event
	// the matching hooks run sequentially in registration order.
	Hooks map[HookEvent][]*HookMatcher

	// CanUseTool is invoked when the process asks for a permission check.
	// Nil allows by default (the process applies PermissionMode itself).
	CanUseTool PermissionFunc

	// ToolServers are in-process MCP servers keyed by name, reachable by the
	// agent through the control channel.
	ToolServers map[string]*toolserver.Server

	// PermissionPromptToolName routes permission prompts to a named tool.
	// Mutually exclusive with CanUseTool, which forces "stdio".
	PermissionPromptToolName string

	// Settings is a settings file path or raw JSON passed to the process.
	Settings string

	// AddDirs grants the process access to additional directories.
	AddDirs []string

	// ContinueConversation resumes the most recent conversation.
	ContinueConversation bool

	// Resume is a session id to resume from.
	Resume string

	// ForkSession forks the resumed session to a new id.
	ForkSession bool

	// Agents defines custom subagents by name.
	Agents map[string]*AgentDefinition

	// IncludePartialMessages enables stream_event frames.
	IncludePartialMessages bool

	// EnableFileCheckpointing enables file change tracking for RewindFiles.
	EnableFileCheckpointing bool

	// ExtraArgs passes arbitrary extra flags; a nil value emits a bare flag.
	ExtraArgs map[string]*string

	// MaxBufferSize caps a single stdout frame in bytes. Zero uses the
	// 1 MiB default.
	MaxBufferSize int

	// Stderr, when set, receives each stderr line from the agent process.
	Stderr func(string)

	// ControlTimeout bounds a control round-trip when the call site does not
	// set its own. Zero uses the 300s default.
	ControlTimeout time.Duration

	// InitializeTimeout bounds the initialize round-trip. Zero uses 60s.
	InitializeTimeout time.Duration

	// Transport overrides the subprocess transport. Nil spawns the agent
	// binary.
	Transport Transport
}

// NeedsControlProtocol reports whether the session registers callbacks that
// require the bidirectional control protocol (hooks, permission checks,
// in-process tool servers, or agent definitions).
func (o *Options) NeedsControlProtocol() bool {
	if o == nil {
		return false
	}

	return len(o.Hooks) > 0 || o.CanUseTool != nil ||
		len(o.ToolServers) > 0 || len(o.Agents) > 0
}
