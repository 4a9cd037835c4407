package agentclient

import (
	"log/slog"
	"time"

	"github.com/moonbase-labs/agentclient-go/internal/config"
	"github.com/moonbase-labs/agentclient-go/internal/toolserver"
)

// Options is the full session configuration. Most callers use the
// functional Option helpers instead of building it directly.
type Options = config.Options

// AgentDefinition configures a named subagent.
type AgentDefinition = config.AgentDefinition

// Transport abstracts the duplex channel to the agent process. The default
// implementation spawns a child process; inject a custom Transport for
// testing or remote connections.
type Transport = config.Transport

// Option configures a session.
type Option func(*Options)

// buildOptions folds functional options into a fresh Options.
func buildOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for protocol debug output. Unset means silent.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithBinaryPath pins the agent binary path, skipping discovery.
func WithBinaryPath(path string) Option {
	return func(o *Options) { o.BinaryPath = path }
}

// WithCwd sets the working directory for the agent process.
func WithCwd(cwd string) Option {
	return func(o *Options) { o.Cwd = cwd }
}

// WithEnv adds or overrides environment variables for the agent process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) { o.Env = env }
}

// WithModel selects the model.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithFallbackModel sets the model used when the primary is unavailable.
func WithFallbackModel(model string) Option {
	return func(o *Options) { o.FallbackModel = model }
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) { o.SystemPrompt = prompt }
}

// WithAppendSystemPrompt appends to the default system prompt.
func WithAppendSystemPrompt(prompt string) Option {
	return func(o *Options) { o.AppendSystemPrompt = prompt }
}

// WithPermissionMode sets the initial permission mode.
func WithPermissionMode(mode string) Option {
	return func(o *Options) { o.PermissionMode = mode }
}

// WithMaxTurns limits conversation turns.
func WithMaxTurns(n int) Option {
	return func(o *Options) { o.MaxTurns = n }
}

// WithAllowedTools pre-approves tools so they skip permission prompts.
func WithAllowedTools(tools ...string) Option {
	return func(o *Options) { o.AllowedTools = tools }
}

// WithDisallowedTools blocks tools outright.
func WithDisallowedTools(tools ...string) Option {
	return func(o *Options) { o.DisallowedTools = tools }
}

// WithHooks installs lifecycle hooks. For one event, matching hooks run
// sequentially in registration order.
func WithHooks(hooks map[HookEvent][]*HookMatcher) Option {
	return func(o *Options) { o.Hooks = hooks }
}

// WithCanUseTool installs the permission callback consulted before tool
// calls. Incompatible with WithPermissionPromptToolName.
func WithCanUseTool(fn PermissionFunc) Option {
	return func(o *Options) { o.CanUseTool = fn }
}

// WithToolServers registers in-process tool servers keyed by name.
func WithToolServers(servers map[string]*toolserver.Server) Option {
	return func(o *Options) { o.ToolServers = servers }
}

// WithPermissionPromptToolName routes permission prompts to a named tool.
func WithPermissionPromptToolName(name string) Option {
	return func(o *Options) { o.PermissionPromptToolName = name }
}

// WithSettings passes a settings file path or raw JSON to the process.
func WithSettings(settings string) Option {
	return func(o *Options) { o.Settings = settings }
}

// WithAddDirs grants the process access to additional directories.
func WithAddDirs(dirs ...string) Option {
	return func(o *Options) { o.AddDirs = dirs }
}

// WithContinueConversation resumes the most recent conversation.
func WithContinueConversation() Option {
	return func(o *Options) { o.ContinueConversation = true }
}

// WithResume resumes the named session.
func WithResume(sessionID string) Option {
	return func(o *Options) { o.Resume = sessionID }
}

// WithForkSession forks a resumed session to a new id.
func WithForkSession() Option {
	return func(o *Options) { o.ForkSession = true }
}

// WithAgents defines custom subagents by name.
func WithAgents(agents map[string]*AgentDefinition) Option {
	return func(o *Options) { o.Agents = agents }
}

// WithIncludePartialMessages enables stream_event frames.
func WithIncludePartialMessages() Option {
	return func(o *Options) { o.IncludePartialMessages = true }
}

// WithFileCheckpointing enables file change tracking for RewindFiles.
func WithFileCheckpointing() Option {
	return func(o *Options) { o.EnableFileCheckpointing = true }
}

// WithExtraArgs passes arbitrary extra flags to the agent binary. A nil
// value emits a bare flag.
func WithExtraArgs(args map[string]*string) Option {
	return func(o *Options) { o.ExtraArgs = args }
}

// WithMaxBufferSize caps a single stdout frame in bytes.
func WithMaxBufferSize(size int) Option {
	return func(o *Options) { o.MaxBufferSize = size }
}

// WithStderr streams each agent stderr line to handler.
func WithStderr(handler func(string)) Option {
	return func(o *Options) { o.Stderr = handler }
}

// WithControlTimeout bounds control round-trips that have no per-operation
// timeout of their own.
func WithControlTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.ControlTimeout = timeout }
}

// WithInitializeTimeout bounds the initialize round-trip.
func WithInitializeTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.InitializeTimeout = timeout }
}

// WithTransport injects a custom transport instead of spawning the agent
// binary.
func WithTransport(transport Transport) Option {
	return func(o *Options) { o.Transport = transport }
}

// WithOptions replaces the entire configuration with a prebuilt Options,
// for callers that load configuration from a profile.
func WithOptions(options *Options) Option {
	return func(o *Options) {
		if options != nil {
			*o = *options
		}
	}
}
