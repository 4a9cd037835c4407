package config

import "context"

// Permission modes.
const (
	PermissionDefault           = "default"
	PermissionAcceptEdits       = "acceptEdits"
	PermissionPlan              = "plan"
	PermissionBypassPermissions = "bypassPermissions"
)

// NormalizePermissionMode maps legacy mode aliases onto their canonical
// names. Unknown values pass through unchanged for the process to reject.
func NormalizePermissionMode(mode string) string {
	switch mode {
	case "acceptAll":
		return PermissionBypassPermissions
	case "prompt":
		return PermissionDefault
	default:
		return mode
	}
}

// PermissionUpdateType identifies what a PermissionUpdate changes.
type PermissionUpdateType string

// Permission update types.
const (
	UpdateAddRules          PermissionUpdateType = "addRules"
	UpdateReplaceRules      PermissionUpdateType = "replaceRules"
	UpdateRemoveRules       PermissionUpdateType = "removeRules"
	UpdateSetMode           PermissionUpdateType = "setMode"
	UpdateAddDirectories    PermissionUpdateType = "addDirectories"
	UpdateRemoveDirectories PermissionUpdateType = "removeDirectories"
)

// PermissionRule names a tool and an optional argument pattern.
type PermissionRule struct {
	ToolName    string
	RuleContent string
}

// PermissionUpdate is one change to the permission configuration, either
// suggested by the process or returned by the host with an Allow decision.
type PermissionUpdate struct {
	Type        PermissionUpdateType
	Rules       []*PermissionRule
	Behavior    string
	Mode        string
	Directories []string
	Destination string
}

// Wire renders the update as the process expects it. Field names here are
// camelCase, unlike the frame envelope.
func (u *PermissionUpdate) Wire() map[string]any {
	out := map[string]any{"type": string(u.Type)}

	if len(u.Rules) > 0 {
		rules := make([]map[string]any, len(u.Rules))

		for i, rule := range u.Rules {
			entry := map[string]any{"toolName": rule.ToolName}
			if rule.RuleContent != "" {
				entry["ruleContent"] = rule.RuleContent
			}

			rules[i] = entry
		}

		out["rules"] = rules
	}

	if u.Behavior != "" {
		out["behavior"] = u.Behavior
	}

	if u.Mode != "" {
		out["mode"] = u.Mode
	}

	if len(u.Directories) > 0 {
		out["directories"] = u.Directories
	}

	if u.Destination != "" {
		out["destination"] = u.Destination
	}

	return out
}

// PermissionRequest accompanies a permission check with the process's own
// suggested resolutions.
type PermissionRequest struct {
	Suggestions []*PermissionUpdate
}

// PermissionDecision is the outcome of a permission check: Allow or Deny.
type PermissionDecision interface {
	permissionDecision()
}

var (
	_ PermissionDecision = (*Allow)(nil)
	_ PermissionDecision = (*Deny)(nil)
)

// Allow permits the tool call. UpdatedInput optionally rewrites the tool
// arguments; UpdatedPermissions optionally persists rule changes.
type Allow struct {
	UpdatedInput       map[string]any
	UpdatedPermissions []*PermissionUpdate
}

func (*Allow) permissionDecision() {}

// Deny rejects the tool call. Interrupt additionally stops the running turn.
type Deny struct {
	Message   string
	Interrupt bool
}

func (*Deny) permissionDecision() {}

// PermissionFunc decides whether the agent may invoke a tool.
type PermissionFunc func(
	ctx context.Context,
	toolName string,
	input map[string]any,
	req *PermissionRequest,
) (PermissionDecision, error)
