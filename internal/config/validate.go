package config

import (
	"errors"
	"fmt"
)

var validStrategies = map[string]bool{
	"fixed":       true,
	"linear":      true,
	"exponential": true,
	"adaptive":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that all required fields are set and values are valid.
func (c *CollectorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.RabbitMQ.URL == "" {
		return errors.New("rabbitmq.url is required")
	}

	if len(c.Exchanges) == 0 {
		return errors.New("at least one exchange is required")
	}
	seen := make(map[string]bool, len(c.Exchanges))
	for i, ex := range c.Exchanges {
		if ex.Name == "" {
			return fmt.Errorf("exchanges[%d].name is required", i)
		}
		if ex.BaseURL == "" {
			return fmt.Errorf("exchanges[%d].base_url is required", i)
		}
		if seen[ex.Name] {
			return fmt.Errorf("exchanges[%d].name %q is duplicated", i, ex.Name)
		}
		seen[ex.Name] = true
	}

	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if !validStrategies[c.Retry.Strategy] {
		return fmt.Errorf("retry.strategy %q is not one of fixed, linear, exponential, adaptive", c.Retry.Strategy)
	}
	if c.Retry.JitterRatio < 0 || c.Retry.JitterRatio > 1 {
		return fmt.Errorf("retry.jitter_ratio must be between 0 and 1, got %v", c.Retry.JitterRatio)
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.base_delay (%v) cannot exceed max_delay (%v)", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}

	if c.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be >= 1")
	}
	if c.Breaker.SuccessThreshold < 1 {
		return errors.New("breaker.success_threshold must be >= 1")
	}

	if c.Health.DegradedThreshold < 1 {
		return errors.New("health.degraded_threshold must be >= 1")
	}
	if c.Health.FailureThreshold < c.Health.DegradedThreshold {
		return fmt.Errorf("health.failure_threshold (%d) must be >= degraded_threshold (%d)",
			c.Health.FailureThreshold, c.Health.DegradedThreshold)
	}
	if c.Health.RecoveryThreshold < 1 {
		return errors.New("health.recovery_threshold must be >= 1")
	}

	if c.Collection.MaxRestarts < 0 {
		return errors.New("collection.max_restarts must be >= 0")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}
