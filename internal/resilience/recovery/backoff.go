package recovery

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Jitter            bool          `yaml:"jitter"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	InitialDelay:      1 * time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}

// ExponentialBackoff computes delays for 1-indexed attempts.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// Rand returns a value in [0, 1); defaults to math/rand/v2.
	Rand func() float64
}

// NewBackoff builds a backoff from a retry config, filling zero fields with defaults.
func NewBackoff(cfg RetryConfig) *ExponentialBackoff {
	b := &ExponentialBackoff{
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.BackoffMultiplier,
		Jitter:       cfg.Jitter,
		Rand:         rand.Float64,
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if b.Multiplier < 1 {
		b.Multiplier = DefaultRetryConfig.BackoffMultiplier
	}
	return b
}

// GetDelay calculates min(InitialDelay * Multiplier^(attempt-1), MaxDelay),
// scaled by a factor in [0.5, 1.5) when jitter is enabled.
func (b *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.Jitter {
		r := b.Rand
		if r == nil {
			r = rand.Float64
		}
		delay *= 0.5 + r()
	}
	return time.Duration(delay)
}
