package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/synatrahq/synatra-sub006/internal/sandbox"
)

// FileEnv names the optional configuration file
const FileEnv = "CONFIG_FILE"

// Duration is a time.Duration read from text such as "30s" in env vars,
// YAML and TOML alike.
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Pool      PoolConfig      `yaml:"pool" toml:"pool"`
	Gateway   GatewayConfig   `yaml:"gateway" toml:"gateway"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" yaml:"port" toml:"port"`
	Host            string   `envconfig:"HOST" yaml:"host" toml:"host"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	Gzip            bool     `envconfig:"GZIP_ENABLED" yaml:"gzip" toml:"gzip"`
}

// PoolConfig holds sandbox pool limits.
type PoolConfig struct {
	Size            int      `envconfig:"POOL_SIZE" yaml:"size" toml:"size"`
	MemoryLimitMB   int64    `envconfig:"POOL_MEMORY_LIMIT_MB" yaml:"memory_limit_mb" toml:"memory_limit_mb"`
	QueueLimit      int      `envconfig:"POOL_QUEUE_LIMIT" yaml:"queue_limit" toml:"queue_limit"`
	DefaultTimeout  Duration `envconfig:"POOL_DEFAULT_TIMEOUT" yaml:"default_timeout" toml:"default_timeout"`
	MaxTimeout      Duration `envconfig:"POOL_MAX_TIMEOUT" yaml:"max_timeout" toml:"max_timeout"`
	MaxCallStack    int      `envconfig:"POOL_MAX_CALL_STACK" yaml:"max_call_stack" toml:"max_call_stack"`
	MaxLogEntries   int      `envconfig:"POOL_MAX_LOG_ENTRIES" yaml:"max_log_entries" toml:"max_log_entries"`
	MaxBridgeCalls  int      `envconfig:"POOL_MAX_BRIDGE_CALLS" yaml:"max_bridge_calls" toml:"max_bridge_calls"`
	MaxResultValues int      `envconfig:"POOL_MAX_RESULT_VALUES" yaml:"max_result_values" toml:"max_result_values"`
}

// GatewayConfig holds the resource gateway client configuration.
type GatewayConfig struct {
	URL             string   `envconfig:"GATEWAY_URL" yaml:"url" toml:"url"`
	Secret          string   `envconfig:"GATEWAY_SECRET" yaml:"secret" toml:"secret"`
	Timeout         Duration `envconfig:"GATEWAY_TIMEOUT" yaml:"timeout" toml:"timeout"`
	Retries         int      `envconfig:"GATEWAY_RETRIES" yaml:"retries" toml:"retries"`
	RPS             float64  `envconfig:"GATEWAY_RPS" yaml:"rps" toml:"rps"`
	Burst           int      `envconfig:"GATEWAY_BURST" yaml:"burst" toml:"burst"`
	BreakerFailures uint32   `envconfig:"GATEWAY_BREAKER_FAILURES" yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerTimeout  Duration `envconfig:"GATEWAY_BREAKER_TIMEOUT" yaml:"breaker_timeout" toml:"breaker_timeout"`
}

// AuthConfig holds service-to-service authentication. An empty secret disables auth.
type AuthConfig struct {
	ServiceSecret string `envconfig:"SERVICE_SECRET" yaml:"service_secret" toml:"service_secret"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	Enabled bool     `envconfig:"CORS_ENABLED" yaml:"enabled" toml:"enabled"`
	Origins []string `envconfig:"CORS_ORIGINS" yaml:"origins" toml:"origins"`
}

// Load builds configuration from defaults, then CONFIG_FILE if set, then
// environment variables. Later sources override earlier ones.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or falls back to defaults on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile overlays a YAML or TOML file onto cfg, chosen by extension.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	pool := sandbox.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			ShutdownTimeout: Duration(15 * time.Second),
			Gzip:            true,
		},
		Pool: PoolConfig{
			Size:            pool.PoolSize,
			MemoryLimitMB:   pool.MemoryLimitMB,
			QueueLimit:      pool.QueueLimit,
			DefaultTimeout:  Duration(pool.DefaultTimeout),
			MaxTimeout:      Duration(pool.MaxTimeout),
			MaxCallStack:    pool.MaxCallStack,
			MaxLogEntries:   pool.MaxLogEntries,
			MaxBridgeCalls:  pool.MaxBridgeCalls,
			MaxResultValues: pool.MaxResultValues,
		},
		Gateway: GatewayConfig{
			Timeout:         Duration(30 * time.Second),
			Retries:         2,
			Burst:           10,
			BreakerFailures: 5,
			BreakerTimeout:  Duration(30 * time.Second),
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Sandbox converts the pool section into sandbox limits.
func (c *Config) Sandbox() sandbox.Config {
	return sandbox.Config{
		PoolSize:        c.Pool.Size,
		MemoryLimitMB:   c.Pool.MemoryLimitMB,
		QueueLimit:      c.Pool.QueueLimit,
		DefaultTimeout:  c.Pool.DefaultTimeout.Std(),
		MaxTimeout:      c.Pool.MaxTimeout.Std(),
		MaxCallStack:    c.Pool.MaxCallStack,
		MaxLogEntries:   c.Pool.MaxLogEntries,
		MaxBridgeCalls:  c.Pool.MaxBridgeCalls,
		MaxResultValues: c.Pool.MaxResultValues,
	}
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Sandbox().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pool: %w", err))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server: port is required"))
	}
	if c.Gateway.Retries < 0 {
		errs = append(errs, fmt.Errorf("gateway: retries must not be negative, got %d", c.Gateway.Retries))
	}
	if c.Gateway.RPS < 0 {
		errs = append(errs, fmt.Errorf("gateway: rps must not be negative, got %v", c.Gateway.RPS))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("rate limit: rps must be positive when enabled"))
	}

	return errors.Join(errs...)
}
