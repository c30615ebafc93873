package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDataExchange       = "futures_data"
	DefaultResponseExchange   = "control_responses"
	DefaultControlQueue       = "collector_control"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPublishTimeout     = 5 * time.Second

	DefaultExchangeTimeout = 10 * time.Second

	DefaultCollectInterval   = 10 * time.Second
	DefaultFetchTimeout      = 10 * time.Second
	DefaultUnhealthyCooldown = 30 * time.Second
	DefaultProbeInterval     = 30 * time.Second
	DefaultReportInterval    = 60 * time.Second
	DefaultInitPingTimeout   = 10 * time.Second
	DefaultMaxRestarts       = 3

	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseDelay   = 1 * time.Second
	DefaultRetryMaxDelay    = 60 * time.Second
	DefaultRetryStrategy    = "exponential"

	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 3
	DefaultRecoveryTimeout  = 60 * time.Second

	DefaultProbeTimeout            = 10 * time.Second
	DefaultHealthDegradedThreshold = 1
	DefaultHealthFailureThreshold  = 3
	DefaultHealthRecoveryThreshold = 2

	DefaultHTTPPort = 8080

	DefaultLogLevel      = "info"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 5
	DefaultLogMaxAgeDays = 30

	DefaultShutdownTimeout = 30 * time.Second
)

func (c *CollectorConfig) applyDefaults() {
	// RabbitMQ defaults
	if c.RabbitMQ.DataExchange == "" {
		c.RabbitMQ.DataExchange = DefaultDataExchange
	}
	if c.RabbitMQ.ResponseExchange == "" {
		c.RabbitMQ.ResponseExchange = DefaultResponseExchange
	}
	if c.RabbitMQ.ControlQueue == "" {
		c.RabbitMQ.ControlQueue = DefaultControlQueue
	}
	if c.RabbitMQ.ReconnectBaseDelay == 0 {
		c.RabbitMQ.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.RabbitMQ.ReconnectMaxDelay == 0 {
		c.RabbitMQ.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.RabbitMQ.PublishTimeout == 0 {
		c.RabbitMQ.PublishTimeout = DefaultPublishTimeout
	}

	// Exchange defaults
	for i := range c.Exchanges {
		if c.Exchanges[i].Timeout == 0 {
			c.Exchanges[i].Timeout = DefaultExchangeTimeout
		}
	}

	// Collection defaults
	if c.Collection.Interval == 0 {
		c.Collection.Interval = DefaultCollectInterval
	}
	if c.Collection.FetchTimeout == 0 {
		c.Collection.FetchTimeout = DefaultFetchTimeout
	}
	if c.Collection.UnhealthyCooldown == 0 {
		c.Collection.UnhealthyCooldown = DefaultUnhealthyCooldown
	}
	if c.Collection.ProbeInterval == 0 {
		c.Collection.ProbeInterval = DefaultProbeInterval
	}
	if c.Collection.ReportInterval == 0 {
		c.Collection.ReportInterval = DefaultReportInterval
	}
	if c.Collection.InitPingTimeout == 0 {
		c.Collection.InitPingTimeout = DefaultInitPingTimeout
	}
	if c.Collection.MaxRestarts == 0 {
		c.Collection.MaxRestarts = DefaultMaxRestarts
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultRetryBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultRetryMaxDelay
	}
	if c.Retry.Strategy == "" {
		c.Retry.Strategy = DefaultRetryStrategy
	}

	// Breaker defaults
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Breaker.RecoveryTimeout == 0 {
		c.Breaker.RecoveryTimeout = DefaultRecoveryTimeout
	}

	// Health defaults
	if c.Health.ProbeTimeout == 0 {
		c.Health.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Health.DegradedThreshold == 0 {
		c.Health.DegradedThreshold = DefaultHealthDegradedThreshold
	}
	if c.Health.FailureThreshold == 0 {
		c.Health.FailureThreshold = DefaultHealthFailureThreshold
	}
	if c.Health.RecoveryThreshold == 0 {
		c.Health.RecoveryThreshold = DefaultHealthRecoveryThreshold
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}

	// Shutdown defaults
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultShutdownTimeout
	}
}
