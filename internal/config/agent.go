package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pywen-dev/pywen/internal/skills"
)

// AgentConfig is the root JSON configuration for the agent execution core
// (spec.md §6's "Config file"), distinct from the TUI's TOML-based provider
// registry config (Config, in config.go): that file configures which LLM backends
// the interactive TUI knows about, while AgentConfig configures one agent
// run's model, credential, and budget.
type AgentConfig struct {
	ModelConfig   ModelConfig `json:"model_config"`
	MaxIterations int         `json:"max_iterations,omitempty"`
	MaxTurns      int         `json:"max_turns,omitempty"`
	LogLevel      string      `json:"log_level,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
}

// ModelConfig names the provider and model an AgentConfig targets.
type ModelConfig struct {
	Provider string `json:"provider"`          // "openai" | "compatible" | "anthropic"
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model"`
	// WireAPI is spec.md §3's LLMConfig wire-format hint: "chat" |
	// "responses" | "auto". Only consulted for provider "openai"/"compatible";
	// empty defaults to "auto" (provider.WireAuto), which behaves as "chat".
	WireAPI string `json:"wire_api,omitempty"`
}

// DefaultMaxIterations and DefaultMaxTurns apply when an AgentConfig leaves
// the corresponding field at its zero value.
const (
	DefaultMaxIterations = 60
	DefaultMaxTurns      = 0 // 0 = unbounded, matching agent.Budgets' own zero-value meaning
)

// LoadAgentConfig reads an AgentConfig from a JSON file at path and applies
// the PYWEN_*/OPENAI_* environment overrides spec.md §6 describes. A missing
// file is a ConfigError-equivalent: the caller is expected to map it to the
// CLI's exit code 1 (user error).
func LoadAgentConfig(path string) (*AgentConfig, error) {
	//nolint:gosec // G304: path comes from a validated --config flag
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	cfg := &AgentConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyAgentEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields LoadAgentConfig cannot recover from on its own.
func (c *AgentConfig) Validate() error {
	if c.ModelConfig.Provider == "" {
		return fmt.Errorf("model_config.provider is required")
	}
	if c.ModelConfig.Model == "" {
		return fmt.Errorf("model_config.model is required")
	}
	switch c.ModelConfig.Provider {
	case "openai", "compatible", "anthropic":
	default:
		return fmt.Errorf("model_config.provider=%q must be one of openai, compatible, anthropic", c.ModelConfig.Provider)
	}
	switch c.ModelConfig.WireAPI {
	case "", "chat", "responses", "auto":
	default:
		return fmt.Errorf("model_config.wire_api=%q must be one of chat, responses, auto", c.ModelConfig.WireAPI)
	}
	return nil
}

// MaxIterationsOrDefault returns the configured iteration budget or
// DefaultMaxIterations if unset.
func (c *AgentConfig) MaxIterationsOrDefault() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// applyAgentEnvOverrides applies the environment variables spec.md §6 lists
// as credential/base-URL fallbacks for the agent's model config. Unlike
// applyEnvOverrides (TUI config), these only fill in values the config file
// left blank — an explicit config value always wins.
func applyAgentEnvOverrides(cfg *AgentConfig) {
	if cfg.ModelConfig.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.ModelConfig.APIKey = v
		}
	}
	if cfg.ModelConfig.BaseURL == "" {
		if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
			cfg.ModelConfig.BaseURL = v
		}
	}
	if cfg.SessionID == "" {
		if v := os.Getenv("PYWEN_SESSION_ID"); v != "" {
			cfg.SessionID = v
		}
	}
}

// PywenHome returns $PYWEN_HOME, or ~/.pywen if unset, matching spec.md §6.
// Delegates to skills.PywenHome so the two packages can never disagree about
// where skills discovery and config/trajectory/log paths root themselves.
func PywenHome() string {
	return skills.PywenHome()
}

// SystemMDSetting resolves $PYWEN_SYSTEM_MD into one of three shapes: the
// feature is disabled ("0"/"false"), it should load $PYWEN_HOME/system.md
// ("1"/"true"), or the value itself is a path to load from.
type SystemMDSetting struct {
	Disabled bool
	Path     string // empty when Disabled
}

// ResolveSystemMD interprets $PYWEN_SYSTEM_MD (or, for the codex agent
// profile, $PYWEN_CODEX_SYSTEM_MD) per spec.md §6.
func ResolveSystemMD(agentType string) SystemMDSetting {
	envVar := "PYWEN_SYSTEM_MD"
	if agentType == "codex" {
		envVar = "PYWEN_CODEX_SYSTEM_MD"
	}
	v := os.Getenv(envVar)
	switch v {
	case "", "0", "false":
		return SystemMDSetting{Disabled: true}
	case "1", "true":
		return SystemMDSetting{Path: filepath.Join(PywenHome(), "system.md")}
	default:
		return SystemMDSetting{Path: v}
	}
}

// WriteSystemMDRequested reports whether $PYWEN_WRITE_SYSTEM_MD asks the
// composed system prompt to be written back to disk.
func WriteSystemMDRequested() bool {
	v := os.Getenv("PYWEN_WRITE_SYSTEM_MD")
	return v != "" && v != "0" && v != "false"
}
