package agentclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildOptions_LaterOptionsWin(t *testing.T) {
	opts := buildOptions([]Option{
		WithModel("first"),
		WithModel("second"),
		WithMaxTurns(3),
	})

	require.Equal(t, "second", opts.Model)
	require.Equal(t, 3, opts.MaxTurns)
}

func TestNeedsControlProtocol(t *testing.T) {
	require.False(t, buildOptions(nil).NeedsControlProtocol())
	require.False(t, buildOptions([]Option{WithModel("m")}).NeedsControlProtocol())

	require.True(t, buildOptions([]Option{
		WithCanUseTool(func(context.Context, string, map[string]any, *PermissionRequest) (PermissionDecision, error) {
			return &Allow{}, nil
		}),
	}).NeedsControlProtocol())

	require.True(t, buildOptions([]Option{
		WithHooks(map[HookEvent][]*HookMatcher{
			HookPreToolUse: {{Hooks: []HookFunc{neutralHook}}},
		}),
	}).NeedsControlProtocol())

	require.True(t, buildOptions([]Option{
		WithToolServers(map[string]*ToolServer{"calc": NewToolServer("calc", "1.0.0")}),
	}).NeedsControlProtocol())

	require.True(t, buildOptions([]Option{
		WithAgents(map[string]*AgentDefinition{"a": {Description: "d", Prompt: "p"}}),
	}).NeedsControlProtocol())
}

func TestWithOptions_ReplacesEverything(t *testing.T) {
	base := &Options{Model: "profile-model", MaxTurns: 9}

	opts := buildOptions([]Option{
		WithMaxTurns(1),
		WithOptions(base),
		WithControlTimeout(time.Minute),
	})

	// WithOptions wipes earlier settings; later options layer on top.
	require.Equal(t, "profile-model", opts.Model)
	require.Equal(t, 9, opts.MaxTurns)
	require.Equal(t, time.Minute, opts.ControlTimeout)
}

func TestValidateOptions_ForcesStdioPromptTool(t *testing.T) {
	opts := buildOptions([]Option{
		WithCanUseTool(func(context.Context, string, map[string]any, *PermissionRequest) (PermissionDecision, error) {
			return &Allow{}, nil
		}),
	})

	require.NoError(t, validateOptions(opts))
	require.Equal(t, "stdio", opts.PermissionPromptToolName)
}

func TestValidateOptions_RejectsConflict(t *testing.T) {
	opts := buildOptions([]Option{
		WithCanUseTool(func(context.Context, string, map[string]any, *PermissionRequest) (PermissionDecision, error) {
			return &Allow{}, nil
		}),
		WithPermissionPromptToolName("custom"),
	})

	require.Error(t, validateOptions(opts))
}
