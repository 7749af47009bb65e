package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the project configuration stored in pulseboard.yml at the
// workspace root.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Project ProjectConfig `yaml:"project" json:"project"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	AI      AIConfig      `yaml:"ai" json:"ai"`

	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type ProjectConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

type AuthConfig struct {
	// JWTSecretEnv names the environment variable holding the HS256 secret.
	// The secret itself never lives in the file.
	JWTSecretEnv           string `yaml:"jwt_secret_env,omitempty" json:"jwt_secret_env,omitempty"`
	AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header,omitempty" json:"allow_legacy_actor_header,omitempty"`
}

// AIConfig configures the next-step adapter. Disabled (or missing key env)
// means suggestions come from the deterministic fallback rules only.
type AIConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	Model     string `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

const fileName = "pulseboard.yml"

const defaultTemplate = `version: 1
project:
  id: %s
auth:
  jwt_secret_env: PULSEBOARD_JWT_SECRET
ai:
  enabled: false
  api_key_env: OPENAI_API_KEY
  model: gpt-4o-mini
`

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, fileName)
}

// Default builds the stock configuration for a new project.
func Default(projectID string) *Config {
	cfg, err := FromYAML([]byte(fmt.Sprintf(defaultTemplate, projectID)))
	if err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return cfg
}

func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile loads and validates a config file.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Load reads the workspace config, failing if the file is absent.
func Load(workspace string) (*Config, error) {
	return FromFile(Path(workspace))
}

// LoadOptional reads the workspace config, falling back to the default for
// projectID when the file does not exist.
func LoadOptional(workspace, projectID string) (*Config, error) {
	cfg, err := Load(workspace)
	if errors.Is(err, os.ErrNotExist) {
		return Default(projectID), nil
	}
	return cfg, err
}

// Write serializes the config to the workspace file.
func (c *Config) Write(workspace string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(Path(workspace), data, 0o644)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project.ID) == "" {
		return errors.New("config: project.id is required")
	}
	if c.AI.Enabled && strings.TrimSpace(c.AI.APIKeyEnv) == "" {
		return errors.New("config: ai.api_key_env is required when ai.enabled")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config: webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config: webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// JWTSecret resolves the signing secret from the configured environment
// variable. Empty when unset.
func (c *Config) JWTSecret() string {
	env := c.Auth.JWTSecretEnv
	if env == "" {
		env = "PULSEBOARD_JWT_SECRET"
	}
	return os.Getenv(env)
}

// WebhookEnabled reports whether a hook should receive deliveries; hooks are
// on unless explicitly disabled.
func WebhookEnabled(h WebhookConfig) bool {
	return h.Enabled == nil || *h.Enabled
}
