// Package config provides configuration loading for genproxy.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jzx17/genproxy/pkg/gemini"
	"github.com/jzx17/genproxy/pkg/retry"
)

// Config represents the complete genproxy configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Gemini GeminiConfig `yaml:"gemini"`
	Retry  retry.Policy `yaml:"retry"`
	Log    LogConfig    `yaml:"log"`

	// ModesFile is an optional YAML file adding or overriding prompt modes
	ModesFile string `yaml:"modes_file,omitempty"`
}

// ServerConfig configures the inbound HTTP server
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `yaml:"addr"`
	// AllowedOrigin is sent as Access-Control-Allow-Origin (default: *)
	AllowedOrigin string `yaml:"allowed_origin"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GeminiConfig configures the upstream API
type GeminiConfig struct {
	// APIKey is normally supplied through GEMINI_API_KEY rather than the file
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// Timeout bounds one whole request to the upstream, retries included
	Timeout time.Duration `yaml:"timeout"`
	// AttemptTimeout bounds a single outbound call; a timed-out call is retried
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// SystemPrompt is added to passthrough payloads that carry no system instruction
	SystemPrompt string `yaml:"system_prompt,omitempty"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigin:   "*",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Gemini: GeminiConfig{
			BaseURL:        gemini.DefaultBaseURL,
			Model:          gemini.DefaultModel,
			Timeout:        90 * time.Second,
			AttemptTimeout: 30 * time.Second,
		},
		Retry: retry.DefaultPolicy(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid.
// A missing API key is not an error here: requests report it individually.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Gemini.BaseURL == "" {
		return fmt.Errorf("gemini.base_url is required")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("gemini.model is required")
	}
	if c.Gemini.Timeout < 0 {
		return fmt.Errorf("gemini.timeout must not be negative")
	}
	if c.Gemini.AttemptTimeout < 0 {
		return fmt.Errorf("gemini.attempt_timeout must not be negative")
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.AllowedOrigin != "" {
		c.Server.AllowedOrigin = other.Server.AllowedOrigin
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	// Gemini
	if other.Gemini.APIKey != "" {
		c.Gemini.APIKey = other.Gemini.APIKey
	}
	if other.Gemini.BaseURL != "" {
		c.Gemini.BaseURL = other.Gemini.BaseURL
	}
	if other.Gemini.Model != "" {
		c.Gemini.Model = other.Gemini.Model
	}
	if other.Gemini.Timeout != 0 {
		c.Gemini.Timeout = other.Gemini.Timeout
	}
	if other.Gemini.AttemptTimeout != 0 {
		c.Gemini.AttemptTimeout = other.Gemini.AttemptTimeout
	}
	if other.Gemini.SystemPrompt != "" {
		c.Gemini.SystemPrompt = other.Gemini.SystemPrompt
	}

	// Retry
	if other.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = other.Retry.MaxAttempts
	}
	if other.Retry.BaseDelay != 0 {
		c.Retry.BaseDelay = other.Retry.BaseDelay
	}
	if other.Retry.JitterBound != 0 {
		c.Retry.JitterBound = other.Retry.JitterBound
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	if other.ModesFile != "" {
		c.ModesFile = other.ModesFile
	}
}
