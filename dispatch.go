package agentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/moonbase-labs/agentclient-go/internal/config"
	"github.com/moonbase-labs/agentclient-go/internal/control"
)

const defaultInitializeTimeout = 60 * time.Second

// dispatcher answers the process's inbound control requests: permission
// checks, hook invocations, and tool server traffic. One dispatcher serves
// one session.
type dispatcher struct {
	log     *slog.Logger
	conduit *control.Conduit
	opts    *Options

	// matchers is keyed by the callback id announced at initialize time;
	// ordered keeps registration order for event-addressed lookup. Options
	// are immutable after Connect, so only the id counter needs the mutex.
	mu         sync.Mutex
	matchers   map[string]*hookRegistration
	ordered    []*hookRegistration
	nextHookID int

	initMu     sync.RWMutex
	initResult map[string]any
}

// hookRegistration ties a callback id back to its event and matcher.
type hookRegistration struct {
	event   HookEvent
	matcher *config.HookMatcher
}

func newDispatcher(log *slog.Logger, conduit *control.Conduit, opts *Options) *dispatcher {
	return &dispatcher{
		log:      log.With("component", "dispatch"),
		conduit:  conduit,
		opts:     opts,
		matchers: make(map[string]*hookRegistration, 8),
	}
}

// register installs the inbound request handlers. Must run before the
// conduit starts reading.
func (d *dispatcher) register() {
	d.conduit.Handle("can_use_tool", d.handleCanUseTool)
	d.conduit.Handle("hook_callback", d.handleHookCallback)
	d.conduit.Handle("mcp_message", d.handleToolServerMessage)
}

// initialize announces hooks, agents, and tool servers to the process and
// records the handshake result.
func (d *dispatcher) initialize(ctx context.Context) error {
	hooksConfig := make(map[string]any, len(d.opts.Hooks))

	d.mu.Lock()

	for event, matchers := range d.opts.Hooks {
		entries := make([]map[string]any, 0, len(matchers))

		for _, m := range matchers {
			callbackID := "hook_" + strconv.Itoa(d.nextHookID)
			d.nextHookID++

			reg := &hookRegistration{event: event, matcher: m}
			d.matchers[callbackID] = reg
			d.ordered = append(d.ordered, reg)

			entry := map[string]any{
				"matcher":         m.Matcher,
				"hookCallbackIds": []string{callbackID},
			}

			if m.Timeout > 0 {
				entry["timeout"] = m.Timeout.Seconds()
			}

			entries = append(entries, entry)
		}

		hooksConfig[string(event)] = entries
	}

	d.mu.Unlock()

	payload := map[string]any{"hooks": hooksConfig}

	// Agent definitions ride the handshake rather than the command line to
	// stay clear of ARG_MAX.
	if len(d.opts.Agents) > 0 {
		payload["agents"] = d.opts.Agents
	}

	result, err := d.conduit.Call(ctx, "initialize", payload, d.initializeTimeout())
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	d.initMu.Lock()
	d.initResult = result
	d.initMu.Unlock()

	return nil
}

func (d *dispatcher) initializeTimeout() time.Duration {
	if d.opts.InitializeTimeout > 0 {
		return d.opts.InitializeTimeout
	}

	if raw := os.Getenv("AGENT_CLIENT_INITIALIZE_TIMEOUT"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	return defaultInitializeTimeout
}

// serverInfo returns a copy of the handshake result, or nil before
// initialization.
func (d *dispatcher) serverInfo() map[string]any {
	d.initMu.RLock()
	defer d.initMu.RUnlock()

	if d.initResult == nil {
		return nil
	}

	return maps.Clone(d.initResult)
}

// handleCanUseTool answers a permission check. With no callback configured
// the tool is allowed; the process still applies its own permission mode.
func (d *dispatcher) handleCanUseTool(ctx context.Context, _ string, request map[string]any) (map[string]any, error) {
	if d.opts.CanUseTool == nil {
		return map[string]any{"behavior": "allow"}, nil
	}

	toolName, _ := request["tool_name"].(string)
	input, _ := request["input"].(map[string]any)

	req := &PermissionRequest{Suggestions: parseSuggestions(request["suggestions"])}

	decision, err := d.opts.CanUseTool(ctx, toolName, input, req)
	if err != nil {
		return nil, err
	}

	switch v := decision.(type) {
	case *Allow:
		out := map[string]any{"behavior": "allow"}

		if v.UpdatedInput != nil {
			out["updatedInput"] = v.UpdatedInput
		}

		if len(v.UpdatedPermissions) > 0 {
			updates := make([]map[string]any, len(v.UpdatedPermissions))
			for i, u := range v.UpdatedPermissions {
				updates[i] = u.Wire()
			}

			out["updatedPermissions"] = updates
		}

		return out, nil

	case *Deny:
		out := map[string]any{"behavior": "deny", "message": v.Message}
		if v.Interrupt {
			out["interrupt"] = true
		}

		return out, nil

	default:
		return nil, fmt.Errorf("permission callback returned %T, want *Allow or *Deny", decision)
	}
}

// parseSuggestions converts the process's suggested permission updates.
// Unparseable entries are dropped.
func parseSuggestions(raw any) []*PermissionUpdate {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil
	}

	out := make([]*PermissionUpdate, 0, len(items))

	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		update := &PermissionUpdate{}

		if t, ok := entry["type"].(string); ok {
			update.Type = PermissionUpdateType(t)
		}

		if b, ok := entry["behavior"].(string); ok {
			update.Behavior = b
		}

		if m, ok := entry["mode"].(string); ok {
			update.Mode = m
		}

		if dest, ok := entry["destination"].(string); ok {
			update.Destination = dest
		}

		if dirs, ok := entry["directories"].([]any); ok {
			for _, dir := range dirs {
				if s, ok := dir.(string); ok {
					update.Directories = append(update.Directories, s)
				}
			}
		}

		if rules, ok := entry["rules"].([]any); ok {
			for _, r := range rules {
				ruleMap, ok := r.(map[string]any)
				if !ok {
					continue
				}

				rule := &PermissionRule{}
				rule.ToolName, _ = ruleMap["toolName"].(string)
				rule.RuleContent, _ = ruleMap["ruleContent"].(string)
				update.Rules = append(update.Rules, rule)
			}
		}

		out = append(out, update)
	}

	return out
}

// handleHookCallback runs the hooks registered under a callback id.
//
// Hooks run sequentially in registration order, each bounded by the
// matcher's timeout. A hook error or timeout counts as neutral. When
// several hooks return decisions, the last non-neutral one wins.
func (d *dispatcher) handleHookCallback(ctx context.Context, _ string, request map[string]any) (map[string]any, error) {
	callbackID, _ := request["callback_id"].(string)
	inputData, _ := request["input"].(map[string]any)

	d.mu.Lock()
	reg, exists := d.matchers[callbackID]
	d.mu.Unlock()

	if !exists {
		// Older process versions address hooks by event and tool name
		// instead of the callback id announced at initialize.
		reg = d.lookupByEvent(inputData)
		if reg == nil {
			return nil, fmt.Errorf("unknown callback_id: %s", callbackID)
		}
	}

	input, err := parseHookInput(reg.event, inputData)
	if err != nil {
		return nil, fmt.Errorf("hook input: %w", err)
	}

	// The process already filtered by matcher, but a stale or buggy peer
	// must not reach hooks the host never registered for this tool.
	if input.ToolName != "" && !reg.matcher.Matches(input.ToolName) {
		return config.Neutral().Wire(), nil
	}

	merged := config.Neutral()

	for i, hookFn := range reg.matcher.Hooks {
		output := d.runHook(ctx, callbackID, i, reg.matcher, hookFn, input)
		if !output.IsNeutral() {
			merged = output
		}
	}

	return merged.Wire(), nil
}

// lookupByEvent resolves a registration from the input's event name and
// tool name. The first matching registration in registration order wins.
func (d *dispatcher) lookupByEvent(inputData map[string]any) *hookRegistration {
	event, _ := inputData["hook_event_name"].(string)
	if event == "" {
		return nil
	}

	toolName, _ := inputData["tool_name"].(string)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, reg := range d.ordered {
		if string(reg.event) != event {
			continue
		}

		if toolName == "" || reg.matcher.Matches(toolName) {
			return reg
		}
	}

	return nil
}

// runHook invokes one hook under the matcher timeout. Failures are logged
// and degrade to neutral so a broken hook never blocks the agent.
func (d *dispatcher) runHook(
	ctx context.Context,
	callbackID string,
	index int,
	matcher *config.HookMatcher,
	hookFn HookFunc,
	input *HookInput,
) *HookOutput {
	hookCtx, cancel := context.WithTimeout(ctx, matcher.HookTimeout())
	defer cancel()

	type hookResult struct {
		output *HookOutput
		err    error
	}

	done := make(chan hookResult, 1)

	go func() {
		output, err := hookFn(hookCtx, input)
		done <- hookResult{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			d.log.Warn("hook failed, treating as neutral",
				"callback_id", callbackID, "index", index, "error", res.err)

			return config.Neutral()
		}

		if res.output == nil {
			return config.Neutral()
		}

		return res.output

	case <-hookCtx.Done():
		d.log.Warn("hook timed out, treating as neutral",
			"callback_id", callbackID, "index", index, "timeout", matcher.HookTimeout())

		return config.Neutral()
	}
}

// parseHookInput builds the typed hook input, keeping the raw payload
// attached for fields the typed view misses.
func parseHookInput(event HookEvent, data map[string]any) (*HookInput, error) {
	if data == nil {
		return nil, fmt.Errorf("missing input payload")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	input := &HookInput{}
	if err := json.Unmarshal(raw, input); err != nil {
		return nil, err
	}

	if input.Event == "" {
		input.Event = event
	}

	// The failure event reports its error under "error" rather than
	// "tool_error".
	if input.ToolError == "" {
		if toolErr, ok := data["error"].(string); ok {
			input.ToolError = toolErr
		}
	}

	input.Raw = data

	return input, nil
}

// handleToolServerMessage relays one JSON-RPC message to an in-process tool
// server. Server-level failures become JSON-RPC errors inside a successful
// control response; the control channel itself never faults for them.
func (d *dispatcher) handleToolServerMessage(ctx context.Context, _ string, request map[string]any) (map[string]any, error) {
	serverName, _ := request["server_name"].(string)

	message, ok := request["message"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mcp_message missing message field")
	}

	server, exists := d.opts.ToolServers[serverName]
	if !exists {
		d.log.Warn("message for unknown tool server", "server", serverName)

		return toolserverNotFound(message["id"], serverName), nil
	}

	return server.HandleMessage(ctx, message), nil
}
