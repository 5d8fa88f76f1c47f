// Package breaker guards units of work against repeated failure.
//
// A Breaker wraps exactly one call per Execute. It never retries; retrying
// belongs to the recovery manager so that one logical recovery attempt maps
// to one admission decision.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/metrics"
)

// ErrCircuitOpen is returned when a call is rejected without being run.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	ResetTimeout:     60 * time.Second,
}

// Func is the unit of work guarded by a breaker.
type Func func(ctx context.Context) (any, error)

// Fallback is invoked instead of failing fast while the circuit is open.
type Fallback func(ctx context.Context, err error) (any, error)

// Breaker is a CLOSED → OPEN → HALF_OPEN state machine for one named resource.
type Breaker struct {
	mu           sync.Mutex
	name         string
	cfg          Config
	state        domain.CircuitStatus
	failureCount int
	successCount int
	lastFailure  time.Time
	nextAttempt  time.Time
	now          func() time.Time
}

// New creates a closed breaker.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig.ResetTimeout
	}
	b := &Breaker{
		name:  name,
		cfg:   cfg,
		state: domain.CircuitClosed,
		now:   time.Now,
	}
	b.publish()
	return b
}

// SetClock replaces the time source.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Name returns the guarded resource name.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn if the breaker admits the call. While OPEN the call fails
// with ErrCircuitOpen, or returns fallback's result when one is supplied.
func (b *Breaker) Execute(ctx context.Context, fn Func, fallback Fallback) (any, error) {
	if err := b.admit(); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return nil, err
	}

	result, err := fn(ctx)
	if err != nil {
		b.onFailure()
		return nil, err
	}
	b.onSuccess()
	return result, nil
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != domain.CircuitOpen {
		return nil
	}
	if b.now().Before(b.nextAttempt) {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}

	b.state = domain.CircuitHalfOpen
	b.successCount = 0
	b.publish()
	slog.Info("Circuit half-open", "name", b.name)
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.CircuitHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.reset()
			slog.Info("Circuit closed", "name", b.name)
		}
	case domain.CircuitClosed:
		b.failureCount = 0
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case domain.CircuitHalfOpen:
		b.trip()
	case domain.CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

// trip must be called with mu held.
func (b *Breaker) trip() {
	b.state = domain.CircuitOpen
	b.successCount = 0
	b.nextAttempt = b.now().Add(b.cfg.ResetTimeout)
	b.publish()
	slog.Warn("Circuit opened",
		"name", b.name,
		"failures", b.failureCount,
		"retryAt", b.nextAttempt.Format(time.RFC3339),
	)
}

// reset must be called with mu held.
func (b *Breaker) reset() {
	b.state = domain.CircuitClosed
	b.failureCount = 0
	b.successCount = 0
	b.nextAttempt = time.Time{}
	b.publish()
}

// Reset forces the breaker back to CLOSED (operator action).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() domain.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.CircuitState{
		Name:            b.name,
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailure,
		NextAttemptTime: b.nextAttempt,
	}
}

func (b *Breaker) publish() {
	var v float64
	switch b.state {
	case domain.CircuitHalfOpen:
		v = 1
	case domain.CircuitOpen:
		v = 2
	}
	metrics.CircuitState.WithLabelValues(b.name).Set(v)
}
