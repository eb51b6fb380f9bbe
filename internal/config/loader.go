package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [LoadFromReader] to fields left unset in the YAML.
const (
	DefaultAdminAddr              = ":8080"
	DefaultShutdownTimeoutSeconds = 15
	DefaultLanguage               = "en"
	DefaultTimeoutSeconds         = 10
	DefaultTTLSeconds             = 300
	DefaultMaxAttempts            = 3
	DefaultInitialBackoffSeconds  = 1
)

// apiKeyEnv is the environment variable consulted when tmdb.api_key is unset.
const apiKeyEnv = "TMDB_API_KEY"

// ValidProviderNames lists the LLM provider names the agent knows how to build.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills unset fields with their
// defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults and
// pulls the TMDB API key from the environment when the file leaves it empty.
func applyDefaults(cfg *Config) {
	if cfg.Server.AdminAddr == "" {
		cfg.Server.AdminAddr = DefaultAdminAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if cfg.TMDB.APIKey == "" {
		cfg.TMDB.APIKey = os.Getenv(apiKeyEnv)
	}
	if cfg.TMDB.Language == "" {
		cfg.TMDB.Language = DefaultLanguage
	}
	if cfg.TMDB.TimeoutSeconds == 0 {
		cfg.TMDB.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = DefaultTTLSeconds
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.InitialBackoffSeconds == 0 {
		cfg.Retry.InitialBackoffSeconds = DefaultInitialBackoffSeconds
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout_seconds %d must not be negative", cfg.Server.ShutdownTimeoutSeconds))
	}

	// TMDB
	if cfg.TMDB.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("tmdb.timeout_seconds %d must not be negative", cfg.TMDB.TimeoutSeconds))
	}
	if cfg.TMDB.APIKey == "" {
		slog.Warn("no TMDB API key configured; tool calls will fail until one is provided",
			"yaml_key", "tmdb.api_key",
			"env", apiKeyEnv,
		)
	}

	// Cache
	if cfg.Cache.TTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_seconds %d must not be negative", cfg.Cache.TTLSeconds))
	}

	// Retry
	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d must be at least 1", cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.InitialBackoffSeconds < 0 {
		errs = append(errs, fmt.Errorf("retry.initial_backoff_seconds %d must not be negative", cfg.Retry.InitialBackoffSeconds))
	}

	// Agent
	validateProviderName(cfg.Agent.Provider)
	if cfg.Agent.Provider != "" && cfg.Agent.Model == "" {
		slog.Warn("agent.provider is set but agent.model is empty; the agent will refuse to start")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list.
func validateProviderName(name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
