package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all firmforge configuration.
type Config struct {
	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Generation loop configuration
	Engine EngineConfig `yaml:"engine"`

	// Subprocess execution settings
	Execution ExecutionConfig `yaml:"execution"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the code-generating model.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`
}

// EngineConfig configures the per-node iteration loop and the cross-node
// scheduler.
type EngineConfig struct {
	// Attempts per node before giving up
	MaxIterations int `yaml:"max_iterations"`

	// Concurrent node loops for locally emulated boards
	Concurrency int `yaml:"concurrency"`

	// Wall-clock limit for one simulation run
	SimTimeout string `yaml:"sim_timeout"`

	// Root for per-node working directories; empty = system temp
	WorkRoot string `yaml:"work_root"`
}

// ExecutionConfig configures subprocess execution.
type ExecutionConfig struct {
	// Default timeout for tool invocations
	DefaultTimeout string `yaml:"default_timeout"`

	// Captured-output cap per stream
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// Environment variables forwarded to tools
	AllowedEnvVars []string `yaml:"allowed_env_vars"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			BaseURL:   "https://api.anthropic.com/v1",
			MaxTokens: 4096,
			Timeout:   "120s",
		},

		Engine: EngineConfig{
			MaxIterations: 3,
			Concurrency:   4,
			SimTimeout:    "5s",
		},

		Execution: ExecutionConfig{
			DefaultTimeout: "2m",
			MaxOutputBytes: 10 * 1024 * 1024,
			AllowedEnvVars: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR"},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "anthropic"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if model := os.Getenv("FIRMFORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if root := os.Getenv("FIRMFORGE_WORK_ROOT"); root != "" {
		c.Engine.WorkRoot = root
	}
	if level := os.Getenv("FIRMFORGE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Engine.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.Engine.MaxIterations)
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Engine.Concurrency)
	}
	if _, err := time.ParseDuration(c.Engine.SimTimeout); err != nil {
		return fmt.Errorf("invalid sim_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
		return fmt.Errorf("invalid llm timeout: %w", err)
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetSimTimeout returns the simulation timeout as a duration.
func (c *Config) GetSimTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.SimTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetExecTimeout returns the subprocess default timeout as a duration.
func (c *Config) GetExecTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.DefaultTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}
