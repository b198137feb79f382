// Package config defines the puppeteerd configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	DataDir  string         `json:"data_dir" yaml:"data_dir"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
	Loop     LoopConfig     `json:"loop" yaml:"loop"`
	Tools    ToolsConfig    `json:"tools" yaml:"tools"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":3000"
}

// StorageConfig selects where the board snapshot lives.
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "json" or "sqlite"
}

// MemoryConfig selects the memory store. Driver defaults to Storage.Driver.
type MemoryConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	Dir    string `json:"dir" yaml:"dir"` // file store root, default <data_dir>/memory
}

// LoopConfig tunes every agent loop.
type LoopConfig struct {
	IdleBackoff     time.Duration `json:"idle_backoff" yaml:"idle_backoff"`
	Pacing          time.Duration `json:"pacing" yaml:"pacing"`
	DecisionTimeout time.Duration `json:"decision_timeout" yaml:"decision_timeout"`
	ToolTimeout     time.Duration `json:"tool_timeout" yaml:"tool_timeout"`
	RecentLogs      int           `json:"recent_logs" yaml:"recent_logs"`
}

// ToolsConfig controls the built-in tools.
type ToolsConfig struct {
	Workspace string        `json:"workspace" yaml:"workspace"`
	Sandbox   SandboxConfig `json:"sandbox" yaml:"sandbox"`
	Browser   BrowserConfig `json:"browser" yaml:"browser"`
}

// SandboxConfig runs run_command in a Docker container when Image is set.
type SandboxConfig struct {
	Image       string            `json:"image" yaml:"image"`
	NetworkMode string            `json:"network_mode" yaml:"network_mode"`
	MemoryLimit int64             `json:"memory_limit" yaml:"memory_limit"`
	CPULimit    float64           `json:"cpu_limit" yaml:"cpu_limit"`
	Env         map[string]string `json:"env,omitempty" yaml:"env"`
}

// BrowserConfig enables the browse_page tool.
type BrowserConfig struct {
	Enabled  bool `json:"enabled" yaml:"enabled"`
	Headless bool `json:"headless" yaml:"headless"`
}

// ProviderConfig holds credentials and endpoints for the decision services.
type ProviderConfig struct {
	AnthropicAPIKey  string `json:"-" yaml:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url,omitempty" yaml:"anthropic_base_url"`
	OpenAIAPIKey     string `json:"-" yaml:"openai_api_key"`
	OpenAIBaseURL    string `json:"openai_base_url,omitempty" yaml:"openai_base_url"`
	OpenRouterAPIKey string `json:"-" yaml:"openrouter_api_key"`
	OllamaBaseURL    string `json:"ollama_base_url,omitempty" yaml:"ollama_base_url"`
	GeminiAPIKey     string `json:"-" yaml:"gemini_api_key"`
	AWSRegion        string `json:"aws_region,omitempty" yaml:"aws_region"`
	AWSProfile       string `json:"aws_profile,omitempty" yaml:"aws_profile"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":3000",
		},
		DataDir:  "./data",
		LogLevel: "info",
		Storage:  StorageConfig{Driver: DriverJSON},
		Loop: LoopConfig{
			IdleBackoff: 5 * time.Second,
			Pacing:      2 * time.Second,
			RecentLogs:  1,
		},
		Tools: ToolsConfig{
			Browser: BrowserConfig{Headless: true},
		},
	}
}

// Load reads a YAML config file over DefaultConfig, fills API keys from the
// environment and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv fills empty provider keys from ANTHROPIC_API_KEY, OPENAI_API_KEY,
// OPENROUTER_API_KEY, GEMINI_API_KEY and AWS_REGION.
func (c *Config) ApplyEnv(getenv func(string) string) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = getenv(key)
		}
	}
	fill(&c.Provider.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	fill(&c.Provider.OpenAIAPIKey, "OPENAI_API_KEY")
	fill(&c.Provider.OpenRouterAPIKey, "OPENROUTER_API_KEY")
	fill(&c.Provider.GeminiAPIKey, "GEMINI_API_KEY")
	fill(&c.Provider.AWSRegion, "AWS_REGION")
}

// Validate rejects unknown drivers and negative timings.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverJSON, DriverSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Memory.Driver {
	case "", DriverJSON, "file", DriverSQLite:
	default:
		return fmt.Errorf("unknown memory driver %q", c.Memory.Driver)
	}
	if c.Loop.IdleBackoff < 0 || c.Loop.Pacing < 0 || c.Loop.DecisionTimeout < 0 || c.Loop.ToolTimeout < 0 {
		return fmt.Errorf("loop timings must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// MemoryDriver returns the effective memory driver: "file" or "sqlite".
func (c *Config) MemoryDriver() string {
	d := c.Memory.Driver
	if d == "" {
		d = c.Storage.Driver
	}
	if d == DriverSQLite {
		return DriverSQLite
	}
	return "file"
}

// MemoryDir returns the file memory root.
func (c *Config) MemoryDir() string {
	if c.Memory.Dir != "" {
		return c.Memory.Dir
	}
	return filepath.Join(c.DataDir, "memory")
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
