// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sammcj/agentloop/types"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".config/agentloop"
	defaultConfigFile = "config.yaml"
	defaultAuditFile  = "audit.db"
)

// Environment variables that override the file.
const (
	EnvAPIKey   = "HF_API_TOKEN"
	EnvModel    = "HF_MODEL"
	EnvEndpoint = "AGENTLOOP_ENDPOINT"
)

// LLMConfig configures the model backend
type LLMConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	InlineModel       string        `yaml:"inline_model,omitempty"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// AgentConfig configures the loop
type AgentConfig struct {
	MaxIterations int    `yaml:"max_iterations"`
	SystemPrompt  string `yaml:"system_prompt,omitempty"`
	// MaxContextTokens enables transcript trimming when positive.
	MaxContextTokens int `yaml:"max_context_tokens"`
	// TokenCounter is "chars" or "tiktoken".
	TokenCounter string `yaml:"token_counter"`
}

// ToolsConfig configures the tool executor and its policy
type ToolsConfig struct {
	ReadLimit       int           `yaml:"read_limit"`
	OutputLimit     int           `yaml:"output_limit"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	Shell           string        `yaml:"shell"`
	AllowedRoots    []string      `yaml:"allowed_roots"`
	AllowedCommands []string      `yaml:"allowed_commands"`
	DeniedCommands  []string      `yaml:"denied_commands"`
	ConfirmUnlisted bool          `yaml:"confirm_unlisted"`
}

// AuditConfig configures the tool execution log
type AuditConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

// TelemetryConfig configures trace export
type TelemetryConfig struct {
	Enable      bool   `yaml:"enable"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures the HTTP wrapper
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Config holds the complete configuration
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Tools     ToolsConfig     `yaml:"tools"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}

	// LLM defaults
	cfg.LLM.Endpoint = "https://router.huggingface.co/v1"
	cfg.LLM.Model = "meta-llama/Llama-3.2-3B-Instruct"
	cfg.LLM.MaxTokens = 2048
	cfg.LLM.Timeout = 120 * time.Second

	// Agent defaults
	cfg.Agent.MaxIterations = 10
	cfg.Agent.TokenCounter = "chars"

	// Tool defaults
	cfg.Tools.ReadLimit = 10000
	cfg.Tools.OutputLimit = 5000
	cfg.Tools.CommandTimeout = 30 * time.Second
	cfg.Tools.Shell = "/bin/sh"

	// Audit defaults
	cfg.Audit.Enable = false
	if dir, err := configDir(); err == nil {
		cfg.Audit.Path = filepath.Join(dir, defaultAuditFile)
	} else {
		cfg.Audit.Path = defaultAuditFile
	}

	// Telemetry defaults
	cfg.Telemetry.Endpoint = "localhost:4318"
	cfg.Telemetry.Insecure = true
	cfg.Telemetry.ServiceName = "agentloop"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	// Server defaults
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 8000
	cfg.Server.MaxConcurrent = 8

	return cfg
}

func configDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultConfigDir), nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultConfigFile), nil
}

// LoadOrCreate loads the config file at path if it exists, or writes a
// default one there if it doesn't. An empty path means the default location.
// The bool result reports whether a new file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, false, err
		}
		path = p
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := cfg.SaveTo(path); err != nil {
			return nil, false, fmt.Errorf("failed to save default config: %w", err)
		}
		cfg.ApplyEnv()
		if err := cfg.validate(); err != nil {
			return nil, false, err
		}
		return cfg, true, nil
	}

	cfg, err := Load(path)
	return cfg, false, err
}

// Load reads and parses the configuration file, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with default config to ensure all fields have values
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.LLM.Endpoint = v
	}
}

// Save writes the configuration to the default location
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to path. The API key is never written;
// it belongs in the environment.
func (c *Config) SaveTo(path string) error {
	out := *c
	out.LLM.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// validate checks that required fields are present and valid
func (c *Config) validate() error {
	if c.LLM.Endpoint == "" {
		return &types.ConfigError{Field: "llm.endpoint", Message: "is required"}
	}
	if c.LLM.Model == "" {
		return &types.ConfigError{Field: "llm.model", Message: "is required"}
	}
	if c.LLM.MaxTokens <= 0 {
		return &types.ConfigError{Field: "llm.max_tokens", Message: "must be positive"}
	}
	if c.LLM.RequestsPerSecond < 0 {
		return &types.ConfigError{Field: "llm.requests_per_second", Message: "must not be negative"}
	}

	if c.Agent.MaxIterations <= 0 {
		return &types.ConfigError{Field: "agent.max_iterations", Message: "must be positive"}
	}
	if c.Agent.MaxContextTokens < 0 {
		return &types.ConfigError{Field: "agent.max_context_tokens", Message: "must not be negative"}
	}
	switch c.Agent.TokenCounter {
	case "", "chars", "tiktoken":
	default:
		return &types.ConfigError{Field: "agent.token_counter", Message: fmt.Sprintf("unknown counter %q", c.Agent.TokenCounter)}
	}

	if c.Tools.CommandTimeout <= 0 {
		return &types.ConfigError{Field: "tools.command_timeout", Message: "must be positive"}
	}
	if c.Tools.Shell == "" {
		return &types.ConfigError{Field: "tools.shell", Message: "is required"}
	}

	if c.Audit.Enable && c.Audit.Path == "" {
		return &types.ConfigError{Field: "audit.path", Message: "is required when audit is enabled"}
	}
	if c.Telemetry.Enable && c.Telemetry.Endpoint == "" {
		return &types.ConfigError{Field: "telemetry.endpoint", Message: "is required when telemetry is enabled"}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return &types.ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &types.ConfigError{Field: "server.port", Message: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}
	if c.Server.MaxConcurrent <= 0 {
		return &types.ConfigError{Field: "server.max_concurrent", Message: "must be positive"}
	}

	return nil
}
