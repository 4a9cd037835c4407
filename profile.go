package agentclient

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a declarative session configuration loadable from YAML. It
// covers the static subset of Options; callbacks and tool servers are code
// and attach via functional options on top.
type Profile struct {
	BinaryPath         string            `yaml:"binary_path,omitempty"`
	Cwd                string            `yaml:"cwd,omitempty"`
	Env                map[string]string `yaml:"env,omitempty"`
	Model              string            `yaml:"model,omitempty"`
	FallbackModel      string            `yaml:"fallback_model,omitempty"`
	SystemPrompt       string            `yaml:"system_prompt,omitempty"`
	AppendSystemPrompt string            `yaml:"append_system_prompt,omitempty"`
	PermissionMode     string            `yaml:"permission_mode,omitempty"`
	MaxTurns           int               `yaml:"max_turns,omitempty"`
	AllowedTools       []string          `yaml:"allowed_tools,omitempty"`
	DisallowedTools    []string          `yaml:"disallowed_tools,omitempty"`
	Settings           string            `yaml:"settings,omitempty"`
	AddDirs            []string          `yaml:"add_dirs,omitempty"`
	IncludePartial     bool              `yaml:"include_partial_messages,omitempty"`
	FileCheckpointing  bool              `yaml:"file_checkpointing,omitempty"`
	MaxBufferSize      int               `yaml:"max_buffer_size,omitempty"`
	ControlTimeout     Duration          `yaml:"control_timeout,omitempty"`
	InitializeTimeout  Duration          `yaml:"initialize_timeout,omitempty"`

	Agents map[string]ProfileAgent `yaml:"agents,omitempty"`
}

// Duration is a time.Duration that decodes from YAML strings such as "90s"
// or "2m", or from a bare integer counted in seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)

		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration: %w", err)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}

	*d = Duration(parsed)

	return nil
}

// ProfileAgent is a subagent definition in profile form.
type ProfileAgent struct {
	Description string   `yaml:"description"`
	Prompt      string   `yaml:"prompt"`
	Tools       []string `yaml:"tools,omitempty"`
	Model       string   `yaml:"model,omitempty"`
}

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	return ParseProfile(raw)
}

// ParseProfile decodes a YAML profile.
func ParseProfile(raw []byte) (*Profile, error) {
	profile := &Profile{}
	if err := yaml.Unmarshal(raw, profile); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	return profile, nil
}

// Options converts the profile into session options.
func (p *Profile) Options() *Options {
	opts := &Options{
		BinaryPath:              p.BinaryPath,
		Cwd:                     p.Cwd,
		Env:                     p.Env,
		Model:                   p.Model,
		FallbackModel:           p.FallbackModel,
		SystemPrompt:            p.SystemPrompt,
		AppendSystemPrompt:      p.AppendSystemPrompt,
		PermissionMode:          p.PermissionMode,
		MaxTurns:                p.MaxTurns,
		AllowedTools:            p.AllowedTools,
		DisallowedTools:         p.DisallowedTools,
		Settings:                p.Settings,
		AddDirs:                 p.AddDirs,
		IncludePartialMessages:  p.IncludePartial,
		EnableFileCheckpointing: p.FileCheckpointing,
		MaxBufferSize:           p.MaxBufferSize,
		ControlTimeout:          time.Duration(p.ControlTimeout),
		InitializeTimeout:       time.Duration(p.InitializeTimeout),
	}

	if len(p.Agents) > 0 {
		opts.Agents = make(map[string]*AgentDefinition, len(p.Agents))
		for name, agent := range p.Agents {
			opts.Agents[name] = &AgentDefinition{
				Description: agent.Description,
				Prompt:      agent.Prompt,
				Tools:       agent.Tools,
				Model:       agent.Model,
			}
		}
	}

	return opts
}

// Apply is an Option carrying the profile's configuration. It replaces
// everything set so far, so pass it first and layer code-level options
// (callbacks, tool servers, logger) after it.
func (p *Profile) Apply() Option {
	return WithOptions(p.Options())
}
