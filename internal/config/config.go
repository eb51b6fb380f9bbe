// Package config provides the configuration schema and loader for the
// Cinescope movie discovery server.
package config

import "time"

// LogLevel controls log verbosity for the Cinescope server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Cinescope.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	TMDB   TMDBConfig   `yaml:"tmdb"`
	Cache  CacheConfig  `yaml:"cache"`
	Retry  RetryConfig  `yaml:"retry"`
	Agent  AgentConfig  `yaml:"agent"`
}

// ServerConfig holds admin networking and logging settings.
// The MCP endpoint itself runs over stdio and needs no listen address.
type ServerConfig struct {
	// AdminAddr is the TCP address of the admin listener serving
	// /healthz, /readyz and /metrics (e.g., ":8080").
	AdminAddr string `yaml:"admin_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeoutSeconds bounds how long a graceful shutdown may
	// take before remaining work is abandoned.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// ShutdownTimeout returns the graceful-shutdown budget as a duration.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// TMDBConfig holds credentials and connection settings for the TMDB v3 API.
type TMDBConfig struct {
	// APIKey authenticates requests against TMDB.
	// When empty, the TMDB_API_KEY environment variable is consulted instead.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the TMDB API endpoint.
	// Leave empty to use the public https://api.themoviedb.org/3.
	BaseURL string `yaml:"base_url"`

	// Language is the ISO 639-1 result language applied to requests that
	// do not specify one (e.g., "en", "de").
	Language string `yaml:"language"`

	// TimeoutSeconds bounds each individual HTTP request to TMDB.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-request TMDB budget as a duration.
func (t TMDBConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// CacheConfig holds settings for the in-memory response cache.
type CacheConfig struct {
	// TTLSeconds is how long a cached upstream response stays fresh.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the cache freshness window as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RetryConfig shapes how failed upstream calls are retried.
type RetryConfig struct {
	// MaxAttempts is the total number of tries per upstream call,
	// including the first one.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoffSeconds is the delay before the first retry.
	// Each further retry doubles the previous delay.
	InitialBackoffSeconds int `yaml:"initial_backoff_seconds"`
}

// InitialBackoff returns the first retry delay as a duration.
func (r RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(r.InitialBackoffSeconds) * time.Second
}

// AgentConfig configures the optional chat agent that drives the MCP server
// from a terminal. Only the cinescope-agent binary reads this section.
type AgentConfig struct {
	// Provider selects the LLM backend (e.g., "openai", "anthropic", "ollama").
	Provider string `yaml:"provider"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// ServerCommand is the executable (with optional arguments) the agent
	// launches to reach the MCP server over stdio (e.g., "cinescope -config config.yaml").
	ServerCommand string `yaml:"server_command"`
}
