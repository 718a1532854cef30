// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/zeteolabs/zeteo/internal/pkg/errors"
)

// Backend type tags.
const (
	BackendElasticsearch = "elasticsearch"
	BackendOpenObserve   = "openobserve"
	BackendKibana        = "kibana"
)

// Config holds all application configuration.
type Config struct {
	// Log backends, keyed by backend id. YAML only; the set of
	// backends is inherently structured and has no env form.
	Backends map[string]BackendConfig `yaml:"backends"`

	// MCP tool servers, keyed by server name.
	MCPServers map[string]MCPServerConfig `yaml:"mcp_servers"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Retry configuration
	Retry RetryConfig `yaml:"retry"`

	// Query configuration
	Query QueryConfig `yaml:"query"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// BackendConfig describes one log-search backend. Which fields are
// required depends on Type; Validate enforces that.
type BackendConfig struct {
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	IndexPattern string `yaml:"index_pattern"`
	Stream       string `yaml:"stream"`
	VerifySSL    *bool  `yaml:"verify_ssl"`
	Version      string `yaml:"version"`
}

// SSLVerified reports whether certificate verification is on.
// Unset defaults to true.
func (b BackendConfig) SSLVerified() bool {
	return b.VerifySSL == nil || *b.VerifySSL
}

// MCPServerConfig describes how to spawn one MCP tool server.
type MCPServerConfig struct {
	Command        string            `yaml:"command"`
	Args           []string          `yaml:"args"`
	Env            map[string]string `yaml:"env"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type       string `envconfig:"ZETEO_CACHE_TYPE" yaml:"type"`
	TTLSeconds int    `envconfig:"ZETEO_CACHE_TTL" yaml:"ttl_seconds"`
	RedisURL   string `envconfig:"ZETEO_REDIS_URL" yaml:"redis_url"`
	Prefix     string `envconfig:"ZETEO_CACHE_PREFIX" yaml:"prefix"`
}

// RetryConfig holds retry policy settings.
type RetryConfig struct {
	MaxAttempts    int     `envconfig:"ZETEO_RETRY_MAX_ATTEMPTS" yaml:"max_attempts"`
	InitialDelayMs int     `envconfig:"ZETEO_RETRY_INITIAL_DELAY_MS" yaml:"initial_delay_ms"`
	MaxDelayMs     int     `envconfig:"ZETEO_RETRY_MAX_DELAY_MS" yaml:"max_delay_ms"`
	Multiplier     float64 `envconfig:"ZETEO_RETRY_MULTIPLIER" yaml:"multiplier"`
}

// QueryConfig holds query-path settings.
type QueryConfig struct {
	TimeoutSeconds int     `envconfig:"ZETEO_QUERY_TIMEOUT" yaml:"timeout_seconds"`
	RatePerSecond  float64 `envconfig:"ZETEO_QUERY_RATE" yaml:"rate_per_second"`
	RateBurst      int     `envconfig:"ZETEO_QUERY_BURST" yaml:"rate_burst"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"ZETEO_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"ZETEO_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, errors.Wrap(errors.CodeConfig, "loading config file", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, errors.Wrap(errors.CodeConfig, "processing env config", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Cache = CacheConfig{
		Type:       "memory",
		TTLSeconds: 300,
		RedisURL:   "redis://localhost:6379",
	}

	cfg.Retry = RetryConfig{
		MaxAttempts:    3,
		InitialDelayMs: 100,
		MaxDelayMs:     10000,
		Multiplier:     2.0,
	}

	cfg.Query = QueryConfig{
		TimeoutSeconds: 30,
		RatePerSecond:  10,
		RateBurst:      20,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	for id, b := range c.Backends {
		if err := b.Validate(); err != nil {
			var appErr *errors.AppError
			if e, ok := err.(*errors.AppError); ok {
				appErr = e
			} else {
				appErr = errors.ConfigError(err.Error())
			}
			return appErr.WithDetail("backend", id)
		}
	}

	for name, s := range c.MCPServers {
		if strings.TrimSpace(s.Command) == "" {
			return errors.ConfigError("mcp server command is required").WithDetail("server", name)
		}
	}

	switch strings.ToLower(c.Cache.Type) {
	case "", "memory", "redis":
	default:
		return errors.Newf(errors.CodeConfig, "unknown cache type: %s", c.Cache.Type)
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.ConfigError("retry max_attempts must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return errors.ConfigError("retry multiplier must be at least 1")
	}

	return nil
}

// Validate checks one backend definition.
func (b BackendConfig) Validate() error {
	if b.URL == "" {
		return errors.ConfigError("backend url is required")
	}

	switch strings.ToLower(b.Type) {
	case BackendElasticsearch:
		// Credentials optional; unsecured dev clusters exist.
	case BackendOpenObserve:
		if b.Username == "" || b.Password == "" {
			return errors.ConfigError("openobserve requires username and password")
		}
		if b.Stream == "" {
			return errors.ConfigError("openobserve requires a stream name")
		}
	case BackendKibana:
		if b.Version == "" {
			return errors.ConfigError("kibana requires a version string")
		}
	default:
		return errors.Newf(errors.CodeConfig, "unknown backend type: %s", b.Type)
	}

	return nil
}

// String renders a redacted summary, safe for logs.
func (b BackendConfig) String() string {
	return fmt.Sprintf("%s backend at %s", b.Type, b.URL)
}
