package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Approval:  DefaultApprovalConfig(),
		Breaker:   DefaultBreakerConfig(),
		Retry:     DefaultRetryConfig(),
		Monitor:   DefaultMonitorConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Completer: DefaultCompleterConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		AgentRateLimit:  0,
		AgentRateBurst:  1,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultDatabaseConfig returns the default workflow store configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:       "memory",
		DSN:          "crewflow.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
}

// DefaultRedisConfig returns the default approval store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		TTL:      24 * time.Hour,
	}
}

// DefaultApprovalConfig returns the default approval gate configuration.
func DefaultApprovalConfig() ApprovalConfig {
	return ApprovalConfig{
		WaitTimeout: 5 * time.Minute,
	}
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 1,
	}
}

// DefaultRetryConfig returns the default recovery configuration.
// Two attempts total, i.e. one retry for transient errors.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		Delay:       100 * time.Millisecond,
		Exponential: false,
	}
}

// DefaultMonitorConfig returns the default monitor configuration.
// Threshold flagging is disabled until configured.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		TimeThreshold: 0,
	}
}

// DefaultCompleterConfig returns the default completion backend
// configuration, a local Ollama instance.
func DefaultCompleterConfig() CompleterConfig {
	return CompleterConfig{
		Endpoint: "http://localhost:11434/api/generate",
		Model:    "llama3.1:8b",
		Timeout:  2 * time.Minute,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow",
		SampleRate:   1.0,
	}
}
