// Package launch builds the agent process invocation: binary discovery,
// command-line arguments, and environment. It is the configuration-facing
// collaborator of the transport; the protocol layer never inspects these
// values.
package launch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/moonbase-labs/agentclient-go/internal/config"
	"github.com/moonbase-labs/agentclient-go/internal/sdkerr"
)

const (
	// sdkVersion is advertised to the agent process via environment.
	sdkVersion = "0.1.0"

	// versionProbeTimeout bounds the optional --version probe.
	versionProbeTimeout = 2 * time.Second
)

// binaryNames are the executable names searched during discovery.
var binaryNames = []string{"claude"}

// extraSearchDirs are checked after PATH.
var extraSearchDirs = []string{
	"/usr/local/bin",
	"/usr/bin",
	"/opt/homebrew/bin",
}

// Discover locates the agent binary. An explicit path wins and is validated
// as-is; otherwise PATH and common install directories are searched.
func Discover(ctx context.Context, explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", &sdkerr.BinaryNotFoundError{SearchedPaths: []string{explicitPath}}
		}

		return explicitPath, nil
	}

	searched := make([]string, 0, 8)

	for _, name := range binaryNames {
		if path, err := exec.LookPath(name); err == nil {
			probeVersion(ctx, path)

			return path, nil
		}

		searched = append(searched, name+" (PATH)")
	}

	home, _ := os.UserHomeDir()
	dirs := extraSearchDirs

	if home != "" {
		dirs = append(dirs, filepath.Join(home, ".local", "bin"))
	}

	for _, dir := range dirs {
		for _, name := range binaryNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				probeVersion(ctx, candidate)

				return candidate, nil
			}

			searched = append(searched, candidate)
		}
	}

	return "", &sdkerr.BinaryNotFoundError{SearchedPaths: searched}
}

// probeVersion runs the binary's --version as a smoke test. Failures are
// ignored: an unprobeable binary still gets a real error at spawn time.
func probeVersion(ctx context.Context, path string) {
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	_ = exec.CommandContext(probeCtx, path, "--version").Run()
}

// Args builds the process arguments. In streaming mode the prompt travels
// over stdin and the input format flag is set; in one-shot mode the prompt
// rides the command line behind --print.
func Args(prompt string, opts *config.Options, streaming bool) []string {
	args := []string{"--output-format", "stream-json", "--verbose"}

	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", config.NormalizePermissionMode(opts.PermissionMode))
	}

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	if opts.FallbackModel != "" {
		args = append(args, "--fallback-model", opts.FallbackModel)
	}

	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}

	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}

	if opts.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.AppendSystemPrompt)
	}

	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(opts.AllowedTools, ","))
	}

	if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", strings.Join(opts.DisallowedTools, ","))
	}

	if opts.PermissionPromptToolName != "" {
		args = append(args, "--permission-prompt-tool", opts.PermissionPromptToolName)
	}

	if opts.Settings != "" {
		args = append(args, "--settings", opts.Settings)
	}

	for _, dir := range opts.AddDirs {
		args = append(args, "--add-dir", dir)
	}

	if opts.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}

	if opts.ContinueConversation {
		args = append(args, "--continue")
	}

	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)
	}

	if opts.ForkSession {
		args = append(args, "--fork-session")
	}

	if len(opts.ToolServers) > 0 {
		args = append(args, "--mcp-config", toolServerConfig(opts))
	}

	// Agent definitions travel in the initialize control request, not here,
	// to stay clear of ARG_MAX.

	for key, value := range opts.ExtraArgs {
		if value == nil {
			args = append(args, "--"+key)
		} else {
			args = append(args, "--"+key, *value)
		}
	}

	if streaming {
		args = append(args, "--input-format", "stream-json")
	} else {
		args = append(args, "--print", "--", prompt)
	}

	return args
}

// toolServerConfig renders the in-process tool servers as an mcp-config
// blob. The process only needs their names; traffic is relayed over the
// control channel.
func toolServerConfig(opts *config.Options) string {
	servers := make(map[string]any, len(opts.ToolServers))
	for name := range opts.ToolServers {
		servers[name] = map[string]any{"type": "sdk", "name": name}
	}

	blob, err := json.Marshal(map[string]any{"mcpServers": servers})
	if err != nil {
		return `{"mcpServers":{}}`
	}

	return string(blob)
}

// Env builds the process environment: the host environment plus SDK markers
// and user overrides.
func Env(opts *config.Options) []string {
	env := os.Environ()
	env = append(env,
		"AGENT_CLIENT_SDK_VERSION="+sdkVersion,
		"CLAUDE_CODE_ENTRYPOINT=sdk-go",
	)

	if opts.EnableFileCheckpointing {
		env = append(env, "CLAUDE_CODE_ENABLE_SDK_FILE_CHECKPOINTING=true")
	}

	for key, value := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env
}
