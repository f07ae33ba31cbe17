package core

import (
	"fmt"
	"strings"
	"time"
)

type QueueConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	ReapThreshold  time.Duration `koanf:"reap_threshold" mapstructure:"reap_threshold"`
}

type DeliveryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	Timeout        time.Duration `koanf:"timeout" mapstructure:"timeout"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	// MaxResponseBytes caps how much of a subscriber response is retained in
	// the per-attempt audit row.
	MaxResponseBytes int `koanf:"max_response_bytes" mapstructure:"max_response_bytes"`
}

type RetryConfig struct {
	Window       time.Duration `koanf:"window" mapstructure:"window"`
	MaxPerWindow int           `koanf:"max_per_window" mapstructure:"max_per_window"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Queue       QueueConfig    `koanf:"queue" mapstructure:"queue"`
	Delivery    DeliveryConfig `koanf:"delivery" mapstructure:"delivery"`
	ManualRetry RetryConfig    `koanf:"manual_retry" mapstructure:"manual_retry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "dispatch",
		Queue: QueueConfig{
			MaxAttempts:    5,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     5 * time.Minute,
			ReapThreshold:  10 * time.Minute,
		},
		Delivery: DeliveryConfig{
			MaxAttempts:      5,
			Timeout:          30 * time.Second,
			InitialBackoff:   2 * time.Second,
			MaxBackoff:       5 * time.Minute,
			MaxResponseBytes: 4096,
		},
		ManualRetry: RetryConfig{
			Window:       time.Minute,
			MaxPerWindow: 5,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("core: queue.max_attempts must be positive")
	}
	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("core: delivery.max_attempts must be positive")
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("core: delivery.timeout must be positive")
	}
	return nil
}
