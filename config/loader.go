// Package config provides unified configuration loading for crewflow.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("CREWFLOW").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete crewflow configuration.
type Config struct {
	// Server holds the HTTP/metrics server settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log holds the structured logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Database holds the workflow store settings.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis holds the approval store settings.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Approval holds the human approval gate settings.
	Approval ApprovalConfig `yaml:"approval" env:"APPROVAL"`

	// Breaker holds the circuit breaker settings.
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`

	// Retry holds the transient-error recovery settings.
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// Monitor holds the performance monitor settings.
	Monitor MonitorConfig `yaml:"monitor" env:"MONITOR"`

	// Telemetry holds the OpenTelemetry settings.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Completer holds the LLM completion backend settings.
	Completer CompleterConfig `yaml:"completer" env:"COMPLETER"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// HTTP API port
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Prometheus metrics port
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// Read timeout
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// Write timeout
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// Agent invocation rate limit (requests per second, 0 disables)
	AgentRateLimit float64 `yaml:"agent_rate_limit" env:"AGENT_RATE_LIMIT"`
	// Agent invocation burst
	AgentRateBurst int `yaml:"agent_rate_burst" env:"AGENT_RATE_BURST"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// DatabaseConfig holds workflow store settings.
type DatabaseConfig struct {
	// Driver: memory, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the sqlite file path (":memory:" for in-process)
	DSN string `yaml:"dsn" env:"DSN"`
	// Maximum open connections
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// Maximum idle connections
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
}

// RedisConfig holds approval store settings.
type RedisConfig struct {
	// Enabled selects the redis-backed approval store
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Redis address
	Addr string `yaml:"addr" env:"ADDR"`
	// Password
	Password string `yaml:"password" env:"PASSWORD"`
	// Database number
	DB int `yaml:"db" env:"DB"`
	// Record TTL
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// ApprovalConfig holds the human approval gate settings.
type ApprovalConfig struct {
	// How long advance blocks waiting for a human decision
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"WAIT_TIMEOUT"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// Enabled wires the breaker into error recovery
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Consecutive failures before the breaker opens
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// Cool-down before an open breaker allows a trial call
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
	// Consecutive trial successes in half-open before closing
	SuccessThreshold int `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
}

// RetryConfig holds transient-error recovery settings.
type RetryConfig struct {
	// Total attempts for transient errors (2 = one retry)
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// Delay between attempts
	Delay time.Duration `yaml:"delay" env:"DELAY"`
	// Exponential backoff between attempts
	Exponential bool `yaml:"exponential" env:"EXPONENTIAL"`
}

// MonitorConfig holds performance monitor settings.
type MonitorConfig struct {
	// Duration threshold that flags an execution (0 disables)
	TimeThreshold time.Duration `yaml:"time_threshold" env:"TIME_THRESHOLD"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	// Enabled turns on OTLP export
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC endpoint
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// Service name reported in resource attributes
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// Trace sampling ratio
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// CompleterConfig holds the LLM completion backend settings. The
// backend speaks the Ollama generate protocol.
type CompleterConfig struct {
	// Generate endpoint URL
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// Model name
	Model string `yaml:"model" env:"MODEL"`
	// Per-request timeout
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Loader loads configuration with a builder API.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CREWFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads configuration. Precedence: defaults → YAML → environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile merges YAML file contents into cfg. A missing file is not
// an error; defaults apply.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromEnv overrides cfg fields from environment variables keyed by
// the env struct tags, e.g. CREWFLOW_BREAKER_FAILURE_THRESHOLD.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Breaker.FailureThreshold <= 0 {
		errs = append(errs, "breaker failure_threshold must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry max_attempts must be positive")
	}
	if c.Approval.WaitTimeout <= 0 {
		errs = append(errs, "approval wait_timeout must be positive")
	}
	if d := c.Database.Driver; d != "memory" && d != "sqlite" {
		errs = append(errs, fmt.Sprintf("unknown database driver %q", d))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
