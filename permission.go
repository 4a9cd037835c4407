package agentclient

import "github.com/moonbase-labs/agentclient-go/internal/config"

// Permission modes.
const (
	PermissionDefault           = config.PermissionDefault
	PermissionAcceptEdits       = config.PermissionAcceptEdits
	PermissionPlan              = config.PermissionPlan
	PermissionBypassPermissions = config.PermissionBypassPermissions
)

// PermissionUpdateType identifies what a PermissionUpdate changes.
type PermissionUpdateType = config.PermissionUpdateType

// Permission update types.
const (
	UpdateAddRules          = config.UpdateAddRules
	UpdateReplaceRules      = config.UpdateReplaceRules
	UpdateRemoveRules       = config.UpdateRemoveRules
	UpdateSetMode           = config.UpdateSetMode
	UpdateAddDirectories    = config.UpdateAddDirectories
	UpdateRemoveDirectories = config.UpdateRemoveDirectories
)

// PermissionRule names a tool and an optional argument pattern.
type PermissionRule = config.PermissionRule

// PermissionUpdate is one change to the permission configuration.
type PermissionUpdate = config.PermissionUpdate

// PermissionRequest carries the process's suggested resolutions alongside a
// permission check.
type PermissionRequest = config.PermissionRequest

// PermissionDecision is the outcome of a permission check.
type PermissionDecision = config.PermissionDecision

// Allow permits the tool call, optionally rewriting its input.
type Allow = config.Allow

// Deny rejects the tool call, optionally interrupting the turn.
type Deny = config.Deny

// PermissionFunc decides whether the agent may invoke a tool.
type PermissionFunc = config.PermissionFunc
