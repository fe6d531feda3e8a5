package backoff

import (
	"math"
	"time"
)

// Default retry schedule: 5s, 10s, 20s, ... capped at 5 minutes.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 5 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 5 * time.Minute
)

// Config holds the retry schedule knobs.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultConfig returns the standard retry schedule.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Normalize replaces non-positive fields with defaults.
func (c Config) Normalize() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = DefaultMultiplier
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// NextDelay returns the wait before the attempt following attempt number
// attempts: base * multiplier^(attempts-1), capped at MaxDelay. It is
// non-decreasing in attempts and constant once the cap is reached.
func NextDelay(attempts int, cfg Config) time.Duration {
	cfg = cfg.Normalize()
	if attempts < 1 {
		attempts = 1
	}

	factor := math.Pow(cfg.Multiplier, float64(attempts-1))
	delay := time.Duration(float64(cfg.BaseDelay) * factor)
	if delay <= 0 || delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}
