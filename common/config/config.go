// Package config loads client settings from YAML with environment expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProtocol         = "https"
	DefaultPort             = 443
	DefaultUserAgent        = "mystuff-client/1.0"
	DefaultTimeout          = 60 * time.Second
	DefaultIdentityProvider = "telekom"
	DefaultMaxRetry         = 5
	DefaultRefreshTimeout   = 30 * time.Second
	DefaultLogLevel         = "info"
)

// Config is the full client configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

// BackendConfig locates the REST backend.
type BackendConfig struct {
	Host      string        `yaml:"host"`
	Protocol  string        `yaml:"protocol"`
	Port      int           `yaml:"port"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// AuthConfig drives token refresh and reauthentication.
type AuthConfig struct {
	// IdentityProvider selects which issued token is sent: "telekom" sends the
	// access token, every other provider sends the id token.
	IdentityProvider string        `yaml:"identity_provider"`
	MaxRetry         int           `yaml:"max_retry"`
	RefreshTimeout   time.Duration `yaml:"refresh_timeout"`
	CoalesceRefresh  bool          `yaml:"coalesce_refresh"`

	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RefreshToken string   `yaml:"refresh_token"`
	Scopes       []string `yaml:"scopes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

var (
	ErrMissingHost     = errors.New("backend.host is required")
	ErrInvalidProtocol = errors.New("backend.protocol must be http or https")
	ErrInvalidPort     = errors.New("backend.port must be between 1 and 65535")
	ErrInvalidRetry    = errors.New("auth.max_retry must not be negative")
)

// Defaults returns a Config with every optional field populated.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			Protocol:  DefaultProtocol,
			Port:      DefaultPort,
			UserAgent: DefaultUserAgent,
			Timeout:   DefaultTimeout,
		},
		Auth: AuthConfig{
			IdentityProvider: DefaultIdentityProvider,
			MaxRetry:         DefaultMaxRetry,
			RefreshTimeout:   DefaultRefreshTimeout,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads a YAML file. When envFile is non-empty it is loaded into the
// process environment first; a missing env file is not an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	// #nosec G304 -- path comes from the operator's command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML after expanding ${VAR} and ${VAR:-default} references.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Defaults()
	expanded := ExpandEnvWithDefaults(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExpandEnvWithDefaults replaces ${VAR} with its value and ${VAR:-fallback}
// with fallback when VAR is unset or empty.
func ExpandEnvWithDefaults(s string) string {
	return os.Expand(s, func(key string) string {
		name, fallback, hasDefault := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return fallback
		}
		return ""
	})
}

// applyEnvOverrides lets secrets stay out of the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MYSTUFF_HOST"); v != "" {
		c.Backend.Host = v
	}
	if v := os.Getenv("MYSTUFF_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Backend.Port = port
		}
	}
	if v := os.Getenv("MYSTUFF_REFRESH_TOKEN"); v != "" {
		c.Auth.RefreshToken = v
	}
	if v := os.Getenv("MYSTUFF_CLIENT_SECRET"); v != "" {
		c.Auth.ClientSecret = v
	}
}

// Validate checks required fields and fills zero values with defaults.
func (c *Config) Validate() error {
	def := Defaults()

	if strings.TrimSpace(c.Backend.Host) == "" {
		return ErrMissingHost
	}
	if c.Backend.Protocol == "" {
		c.Backend.Protocol = def.Backend.Protocol
	}
	c.Backend.Protocol = strings.ToLower(c.Backend.Protocol)
	if c.Backend.Protocol != "http" && c.Backend.Protocol != "https" {
		return ErrInvalidProtocol
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = def.Backend.Port
	}
	if c.Backend.Port < 0 || c.Backend.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Backend.UserAgent == "" {
		c.Backend.UserAgent = def.Backend.UserAgent
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = def.Backend.Timeout
	}

	if c.Auth.IdentityProvider == "" {
		c.Auth.IdentityProvider = def.Auth.IdentityProvider
	}
	if c.Auth.MaxRetry < 0 {
		return ErrInvalidRetry
	}
	if c.Auth.MaxRetry == 0 {
		c.Auth.MaxRetry = def.Auth.MaxRetry
	}
	if c.Auth.RefreshTimeout <= 0 {
		c.Auth.RefreshTimeout = def.Auth.RefreshTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	return nil
}
