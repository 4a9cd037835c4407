package agentclient

import "github.com/moonbase-labs/agentclient-go/internal/config"

// HookEvent names a lifecycle point the process consults the host about.
type HookEvent = config.HookEvent

// Hook events.
const (
	HookPreToolUse         = config.HookPreToolUse
	HookPostToolUse        = config.HookPostToolUse
	HookPostToolUseFailure = config.HookPostToolUseFailure
	HookUserPromptSubmit   = config.HookUserPromptSubmit
	HookStop               = config.HookStop
	HookSubagentStop       = config.HookSubagentStop
	HookPreCompact         = config.HookPreCompact
	HookNotification       = config.HookNotification
)

// HookInput is the context delivered to a hook. Fields are populated
// per event; Raw always holds the full wire payload.
type HookInput = config.HookInput

// HookOutput is a hook's verdict. The zero value (or NeutralHookOutput)
// lets execution proceed unchanged.
type HookOutput = config.HookOutput

// NeutralHookOutput is an output that does not influence execution.
var NeutralHookOutput = config.Neutral

// HookFunc is a single hook. Returning an error or overrunning the matcher
// timeout counts as neutral; it never blocks the agent.
type HookFunc = config.HookFunc

// HookMatcher binds hooks to an event, optionally filtered by tool name.
// An empty Matcher matches everything; "A|B" matches tools A and B exactly.
type HookMatcher = config.HookMatcher

// DefaultHookTimeout bounds one hook invocation unless the matcher
// overrides it.
const DefaultHookTimeout = config.DefaultHookTimeout
