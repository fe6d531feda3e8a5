package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/taskhive/pushguard/internal/backoff"
)

type Config struct {
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL    string `env:"RABBITMQ_URL,required=true"`
	RedisURL       string `env:"REDIS_URL,required=true"`
	PushGatewayURL string `env:"PUSH_GATEWAY_URL,required=true"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	SweepIntervalSec   int `env:"SWEEP_INTERVAL_SEC,default=30"`
	SweepBatchLimit    int `env:"SWEEP_BATCH_LIMIT,default=100"`
	InterRecordDelayMs int `env:"INTER_RECORD_DELAY_MS,default=100"`

	RetryMaxAttempts       int     `env:"RETRY_MAX_ATTEMPTS,default=3"`
	RetryBaseDelayMs       int     `env:"RETRY_BASE_DELAY_MS,default=5000"`
	RetryBackoffMultiplier float64 `env:"RETRY_BACKOFF_MULTIPLIER,default=2.0"`
	RetryMaxDelayMs        int     `env:"RETRY_MAX_DELAY_MS,default=300000"`

	AnalyticsWindowDays int `env:"ANALYTICS_WINDOW_DAYS,default=30"`
	CleanupDays         int `env:"CLEANUP_DAYS,default=7"`
	CleanupIntervalMin  int `env:"CLEANUP_INTERVAL_MIN,default=60"`

	ConsumerPrefetch int `env:"CONSUMER_PREFETCH,default=8"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Backoff translates the environment settings into a retry schedule.
func (c *Config) Backoff() backoff.Config {
	return backoff.Config{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		Multiplier:  c.RetryBackoffMultiplier,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
	}.Normalize()
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *Config) InterRecordDelay() time.Duration {
	return time.Duration(c.InterRecordDelayMs) * time.Millisecond
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMin) * time.Minute
}
