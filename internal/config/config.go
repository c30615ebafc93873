package config

import "time"

// CollectorConfig is the root configuration for a collector instance.
type CollectorConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Exchanges  []ExchangeConfig `yaml:"exchanges"`
	Symbols    []string         `yaml:"symbols"`
	Collection CollectionConfig `yaml:"collection"`
	Retry      RetryConfig      `yaml:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Health     HealthConfig     `yaml:"health"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
}

// InstanceConfig identifies this collector.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// RabbitMQConfig holds broker settings.
type RabbitMQConfig struct {
	URL                string        `yaml:"url"`
	DataExchange       string        `yaml:"data_exchange"`
	ResponseExchange   string        `yaml:"response_exchange"`
	ControlQueue       string        `yaml:"control_queue"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PublishTimeout     time.Duration `yaml:"publish_timeout"`
}

// ExchangeConfig holds settings for one exchange client.
type ExchangeConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CollectionConfig holds worker and orchestrator timing settings.
type CollectionConfig struct {
	Interval          time.Duration `yaml:"interval"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	UnhealthyCooldown time.Duration `yaml:"unhealthy_cooldown"`
	ProbeInterval     time.Duration `yaml:"probe_interval"`
	ReportInterval    time.Duration `yaml:"report_interval"`
	InitPingTimeout   time.Duration `yaml:"init_ping_timeout"`
	MaxRestarts       int           `yaml:"max_restarts"`
}

// RetryConfig holds retry policy settings.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Strategy    string        `yaml:"strategy"` // fixed, linear, exponential, adaptive
	JitterRatio float64       `yaml:"jitter_ratio"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// HealthConfig holds health monitor thresholds.
type HealthConfig struct {
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	DegradedThreshold int           `yaml:"degraded_threshold"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	RecoveryThreshold int           `yaml:"recovery_threshold"`
}

// HTTPConfig holds the health/debug endpoint settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`  // empty logs to stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ShutdownConfig holds graceful shutdown settings.
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}
