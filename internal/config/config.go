// Package config loads walletauth client configuration from YAML files with
// ${VAR} expansion, or from the environment alone.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration
type Config struct {
	RelyingParty RelyingPartyConfig `yaml:"relying_party"`
	Backend      BackendConfig      `yaml:"backend"`
	Agent        AgentConfig        `yaml:"agent"`
	Store        StoreConfig        `yaml:"store"`
	Events       EventsConfig       `yaml:"events"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// RelyingPartyConfig holds the fields bound into every challenge message
type RelyingPartyConfig struct {
	Domain    string `yaml:"domain"` // Defaults to the host of URI
	URI       string `yaml:"uri"`
	Statement string `yaml:"statement"`
	Version   string `yaml:"version"`
}

// BackendConfig locates the challenge and verify endpoints
type BackendConfig struct {
	BaseURL       string        `yaml:"base_url"`
	ChallengePath string        `yaml:"challenge_path"`
	VerifyPath    string        `yaml:"verify_path"`
	Timeout       time.Duration `yaml:"-"`
	TimeoutRaw    string        `yaml:"timeout"`
}

// AgentConfig locates the signing agent. An empty RPCURL means none is present.
type AgentConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

// StoreConfig selects where the session credential is held
type StoreConfig struct {
	Kind      string        `yaml:"kind"` // memory or redis
	RedisURL  string        `yaml:"redis_url"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"-"` // Zero keeps keys until sign-out
	TTLRaw    string        `yaml:"ttl"`
}

// EventsConfig controls lifecycle event publishing
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Topic    string `yaml:"topic"`
	RedisURL string `yaml:"redis_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from WALLETAUTH_* variables and REDIS_URL.
func FromEnv() (*Config, error) {
	cfg := Default()
	setFromEnv(&cfg.RelyingParty.Domain, "WALLETAUTH_DOMAIN")
	setFromEnv(&cfg.RelyingParty.URI, "WALLETAUTH_URI")
	setFromEnv(&cfg.RelyingParty.Statement, "WALLETAUTH_STATEMENT")
	setFromEnv(&cfg.Backend.BaseURL, "WALLETAUTH_BACKEND_URL")
	setFromEnv(&cfg.Backend.TimeoutRaw, "WALLETAUTH_BACKEND_TIMEOUT")
	setFromEnv(&cfg.Agent.RPCURL, "WALLETAUTH_AGENT_RPC")
	setFromEnv(&cfg.Store.Kind, "WALLETAUTH_STORE")
	setFromEnv(&cfg.Store.RedisURL, "REDIS_URL")
	setFromEnv(&cfg.Events.RedisURL, "REDIS_URL")
	setFromEnv(&cfg.Logging.Level, "WALLETAUTH_LOG_LEVEL")
	setFromEnv(&cfg.Logging.Format, "WALLETAUTH_LOG_FORMAT")
	if v := os.Getenv("WALLETAUTH_EVENTS"); v != "" {
		cfg.Events.Enabled = v == "1" || strings.EqualFold(v, "true")
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dev returns the configuration for an in-process run against the dev relying
// party. The backend URL is replaced once the dev server is listening.
func Dev() (*Config, error) {
	cfg := Default()
	cfg.RelyingParty.URI = "http://localhost"
	cfg.Backend.BaseURL = "http://127.0.0.1"
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			ChallengePath: "/api/auth/nonce",
			VerifyPath:    "/api/auth/verify",
			TimeoutRaw:    "10s",
		},
		Store: StoreConfig{
			Kind: StoreMemory,
		},
		Events: EventsConfig{
			Topic: "walletauth.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) finish() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	var errs []error

	if c.RelyingParty.URI == "" {
		errs = append(errs, errors.New("relying_party.uri is required"))
	} else if u, err := url.Parse(c.RelyingParty.URI); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("relying_party.uri %q is not an absolute url", c.RelyingParty.URI))
	}
	if strings.ContainsAny(c.RelyingParty.Statement, "\r\n") {
		errs = append(errs, errors.New("relying_party.statement must be a single line"))
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}

	switch c.Store.Kind {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind must be %q or %q, got %q", StoreMemory, StoreRedis, c.Store.Kind))
	}

	if c.Events.Enabled && c.Events.RedisURL == "" {
		errs = append(errs, errors.New("events.redis_url is required when events are enabled"))
	}

	return errors.Join(errs...)
}

func parseDurations(cfg *Config) error {
	var err error
	if cfg.Backend.Timeout, err = parseDuration(cfg.Backend.TimeoutRaw); err != nil {
		return fmt.Errorf("backend.timeout: %w", err)
	}
	if cfg.Store.TTL, err = parseDuration(cfg.Store.TTLRaw); err != nil {
		return fmt.Errorf("store.ttl: %w", err)
	}
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
