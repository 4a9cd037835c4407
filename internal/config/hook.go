package config

import (
	"context"
	"strings"
	"time"
)

// HookEvent names a lifecycle point at which the process consults the host.
type HookEvent string

// Hook events recognized by the process.
const (
	HookPreToolUse         HookEvent = "PreToolUse"
	HookPostToolUse        HookEvent = "PostToolUse"
	HookPostToolUseFailure HookEvent = "PostToolUseFailure"
	HookUserPromptSubmit   HookEvent = "UserPromptSubmit"
	HookStop               HookEvent = "Stop"
	HookSubagentStop       HookEvent = "SubagentStop"
	HookPreCompact         HookEvent = "PreCompact"
	HookNotification       HookEvent = "Notification"
)

// DefaultHookTimeout bounds one hook invocation unless the matcher sets its
// own. A hook that overruns counts as neutral.
const DefaultHookTimeout = 60 * time.Second

// HookInput is the context delivered to a hook. Which fields carry values
// depends on the event; Raw always holds the complete wire payload for
// anything the typed fields miss.
//
//nolint:tagliatelle // wire protocol uses snake_case
type HookInput struct {
	Event          HookEvent `json:"hook_event_name"`
	SessionID      string    `json:"session_id,omitempty"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	Cwd            string    `json:"cwd,omitempty"`
	PermissionMode string    `json:"permission_mode,omitempty"`

	// Tool events.
	ToolName     string         `json:"tool_name,omitempty"`
	ToolInput    map[string]any `json:"tool_input,omitempty"`
	ToolUseID    string         `json:"tool_use_id,omitempty"`
	ToolResponse any            `json:"tool_response,omitempty"`
	ToolError    string         `json:"tool_error,omitempty"`

	// UserPromptSubmit.
	Prompt string `json:"prompt,omitempty"`

	// Stop and SubagentStop.
	StopHookActive bool `json:"stop_hook_active,omitempty"`

	// PreCompact.
	Trigger string `json:"trigger,omitempty"`

	// Notification.
	Message string `json:"message,omitempty"`

	Raw map[string]any `json:"-"`
}

// HookOutput is a hook's verdict. The zero value is neutral: execution
// proceeds unchanged.
//
//nolint:tagliatelle // wire protocol uses snake_case
type HookOutput struct {
	// Continue set to false stops the agent after the hook.
	Continue *bool `json:"continue,omitempty"`

	// SuppressOutput hides the hook output from the transcript.
	SuppressOutput bool `json:"suppressOutput,omitempty"`

	// StopReason is shown when Continue is false.
	StopReason string `json:"stopReason,omitempty"`

	// Decision "block" rejects the action the event describes.
	Decision string `json:"decision,omitempty"`

	// Reason explains the decision to the model.
	Reason string `json:"reason,omitempty"`

	// SystemMessage injects a message visible to the model.
	SystemMessage string `json:"systemMessage,omitempty"`

	// SpecificOutput carries event-specific payloads, such as
	// hookSpecificOutput for PreToolUse permission decisions.
	SpecificOutput map[string]any `json:"hookSpecificOutput,omitempty"`
}

// Neutral returns an output that does not influence execution.
func Neutral() *HookOutput {
	return &HookOutput{}
}

// IsNeutral reports whether the output carries no decision.
func (o *HookOutput) IsNeutral() bool {
	if o == nil {
		return true
	}

	return o.Continue == nil && !o.SuppressOutput && o.StopReason == "" &&
		o.Decision == "" && o.Reason == "" && o.SystemMessage == "" &&
		len(o.SpecificOutput) == 0
}

// Wire renders the output as a response payload. Continue defaults to true
// when unset.
func (o *HookOutput) Wire() map[string]any {
	out := make(map[string]any, 8)

	if o.Continue != nil {
		out["continue"] = *o.Continue
	} else {
		out["continue"] = true
	}

	if o.SuppressOutput {
		out["suppressOutput"] = true
	}

	if o.StopReason != "" {
		out["stopReason"] = o.StopReason
	}

	if o.Decision != "" {
		out["decision"] = o.Decision
	}

	if o.Reason != "" {
		out["reason"] = o.Reason
	}

	if o.SystemMessage != "" {
		out["systemMessage"] = o.SystemMessage
	}

	if len(o.SpecificOutput) > 0 {
		out["hookSpecificOutput"] = o.SpecificOutput
	}

	return out
}

// HookFunc is a single hook. A returned error or an overrun timeout counts
// as neutral; hooks never wedge the agent.
type HookFunc func(ctx context.Context, input *HookInput) (*HookOutput, error)

// HookMatcher binds hooks to an event, optionally filtered by tool name.
type HookMatcher struct {
	// Matcher filters by tool name for tool events. Empty matches every
	// tool; "A|B" matches tools A and B exactly. Non-tool events ignore it.
	Matcher string

	// Hooks run sequentially in slice order when the matcher applies.
	Hooks []HookFunc

	// Timeout overrides DefaultHookTimeout for this matcher's hooks.
	Timeout time.Duration
}

// Matches reports whether this matcher applies to toolName.
func (m *HookMatcher) Matches(toolName string) bool {
	if m.Matcher == "" {
		return true
	}

	for alt := range strings.SplitSeq(m.Matcher, "|") {
		if alt == toolName {
			return true
		}
	}

	return false
}

// HookTimeout returns the effective per-hook timeout.
func (m *HookMatcher) HookTimeout() time.Duration {
	if m.Timeout > 0 {
		return m.Timeout
	}

	return DefaultHookTimeout
}
