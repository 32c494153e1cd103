package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Environment variables read by the loader
const (
	EnvAPIKey      = "GEMINI_API_KEY"
	EnvModel       = "GEMINI_MODEL"
	EnvBaseURL     = "GEMINI_BASE_URL"
	EnvAddr        = "GENPROXY_ADDR"
	EnvMaxAttempts = "GENPROXY_MAX_ATTEMPTS"

	EnvAttemptTimeout = "GENPROXY_ATTEMPT_TIMEOUT"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	getenv func(string) string
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithGetenv replaces the environment lookup, for tests
func WithGetenv(getenv func(string) string) LoaderOption {
	return func(l *Loader) {
		l.getenv = getenv
	}
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger, getenv: os.Getenv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. YAML file at path (skipped when path is empty)
// 3. Environment variables
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config file", slog.String("path", path))
		config.Merge(fileConfig)
	}

	l.applyEnv(config)

	if config.Gemini.APIKey == "" {
		l.logger.Warn("No Gemini API key configured; API requests will fail",
			slog.String("env", EnvAPIKey))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnv overrides config with any environment variables that are set
func (l *Loader) applyEnv(config *Config) {
	if v := l.getenv(EnvAPIKey); v != "" {
		config.Gemini.APIKey = v
	}
	if v := l.getenv(EnvModel); v != "" {
		config.Gemini.Model = v
	}
	if v := l.getenv(EnvBaseURL); v != "" {
		config.Gemini.BaseURL = v
	}
	if v := l.getenv(EnvAddr); v != "" {
		config.Server.Addr = v
	}
	if v := l.getenv(EnvMaxAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Retry.MaxAttempts = n
		} else {
			l.ignored(EnvMaxAttempts, v)
		}
	}
	if v := l.getenv(EnvAttemptTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Gemini.AttemptTimeout = d
		} else {
			l.ignored(EnvAttemptTimeout, v)
		}
	}
}

func (l *Loader) ignored(env, value string) {
	l.logger.Warn("Ignoring invalid environment value",
		slog.String("env", env), slog.String("value", value))
}
