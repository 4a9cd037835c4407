package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePermissionMode(t *testing.T) {
	require.Equal(t, PermissionBypassPermissions, NormalizePermissionMode("acceptAll"))
	require.Equal(t, PermissionDefault, NormalizePermissionMode("prompt"))
	require.Equal(t, PermissionAcceptEdits, NormalizePermissionMode("acceptEdits"))
	require.Equal(t, PermissionPlan, NormalizePermissionMode("plan"))

	// Unknown modes pass through for the process to reject.
	require.Equal(t, "yolo", NormalizePermissionMode("yolo"))
}

func TestPermissionUpdate_Wire(t *testing.T) {
	update := &PermissionUpdate{
		Type: UpdateAddRules,
		Rules: []*PermissionRule{
			{ToolName: "Bash", RuleContent: "ls *"},
			{ToolName: "Read"},
		},
		Behavior:    "allow",
		Destination: "session",
	}

	wire := update.Wire()
	require.Equal(t, "addRules", wire["type"])
	require.Equal(t, "allow", wire["behavior"])
	require.Equal(t, "session", wire["destination"])

	rules := wire["rules"].([]map[string]any)
	require.Len(t, rules, 2)
	require.Equal(t, map[string]any{"toolName": "Bash", "ruleContent": "ls *"}, rules[0])
	require.Equal(t, map[string]any{"toolName": "Read"}, rules[1])
}

func TestPermissionUpdate_WireOmitsEmpty(t *testing.T) {
	wire := (&PermissionUpdate{Type: UpdateSetMode, Mode: "plan"}).Wire()

	require.Equal(t, map[string]any{"type": "setMode", "mode": "plan"}, wire)
}

func TestPermissionUpdate_WireDirectories(t *testing.T) {
	wire := (&PermissionUpdate{
		Type:        UpdateAddDirectories,
		Directories: []string{"/srv/data"},
	}).Wire()

	require.Equal(t, "addDirectories", wire["type"])
	require.Equal(t, []string{"/srv/data"}, wire["directories"])
}
