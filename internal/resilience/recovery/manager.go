// Package recovery selects and runs a recovery strategy for a failure, each
// strategy guarded by a circuit breaker.
//
// This package contains:
//   - Manager: strategy selection, breaker admission, statistics
//   - Strategies: retry, rollback, fallback, cache, queue, ignore, escalate
//   - Queue: deferred operations processed on a fixed interval
//   - Cache: short-lived results served fresh or stale
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/resilience/breaker"
)

// Config holds recovery settings.
type Config struct {
	Retry      RetryConfig   `yaml:"retry"`
	Queue      QueueConfig   `yaml:"queue"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	CacheStale time.Duration `yaml:"cache_stale"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Retry:      DefaultRetryConfig,
	Queue:      DefaultQueueConfig,
	CacheTTL:   5 * time.Minute,
	CacheStale: time.Hour,
}

// Recorder receives recovery events; *audit.Logger satisfies it.
type Recorder interface {
	Log(ctx context.Context, ev audit.Event, level domain.AuditLevel) (domain.AuditEntry, error)
}

// Manager owns the strategies, the breakers guarding them, the deferred
// queue and the result cache.
type Manager struct {
	cfg        Config
	breakers   *breaker.Registry
	strategies map[domain.Strategy]Strategy
	backoff    *ExponentialBackoff
	cache      *Cache
	queue      *Queue
	escalator  Escalator
	recorder   Recorder
	sleep      func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	handlers map[domain.Kind]domain.Strategy
	stats    domain.ErrorStatistics
}

// NewManager creates a manager. escalator and recorder may be nil.
func NewManager(
	cfg Config,
	breakers *breaker.Registry,
	escalator Escalator,
	recorder Recorder,
) *Manager {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig.CacheTTL
	}
	if cfg.CacheStale <= 0 {
		cfg.CacheStale = DefaultConfig.CacheStale
	}
	if breakers == nil {
		breakers = breaker.NewRegistry(breaker.DefaultConfig)
	}

	m := &Manager{
		cfg:       cfg,
		breakers:  breakers,
		backoff:   NewBackoff(cfg.Retry),
		cache:     NewCache(cfg.CacheTTL, cfg.CacheStale),
		queue:     NewQueue(cfg.Queue),
		escalator: escalator,
		recorder:  recorder,
		sleep:     sleepContext,
		handlers:  make(map[domain.Kind]domain.Strategy),
		stats:     newStats(),
	}
	m.queue.record = m.record

	m.strategies = map[domain.Strategy]Strategy{}
	for _, s := range []Strategy{
		&retryStrategy{m: m},
		&rollbackStrategy{m: m},
		fallbackStrategy{},
		&cacheStrategy{m: m},
		&queueStrategy{m: m},
		&ignoreStrategy{m: m},
		&escalateStrategy{m: m},
	} {
		m.strategies[s.Name()] = s
	}
	return m
}

// SetSleep replaces the delay function used between retries.
func (m *Manager) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	m.sleep = sleep
}

// Backoff exposes the retry delay policy.
func (m *Manager) Backoff() *ExponentialBackoff { return m.backoff }

// Breakers exposes the breaker registry for operator reset.
func (m *Manager) Breakers() *breaker.Registry { return m.breakers }

// Queue exposes the deferred-operation queue.
func (m *Manager) Queue() *Queue { return m.queue }

// Cache exposes the result cache.
func (m *Manager) Cache() *Cache { return m.cache }

// Remember seeds the cache after a successful call.
func (m *Manager) Remember(key string, value any) {
	m.cache.Set(key, value)
}

// RegisterHandler routes failures of kind to strategy.
func (m *Manager) RegisterHandler(kind domain.Kind, strategy domain.Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = strategy
}

// SelectStrategy picks the strategy for f: explicit strategy, then a
// registered handler for its kind, then severity and kind defaults, then retry.
func (m *Manager) SelectStrategy(f *domain.RecoverableFailure, opts Options) domain.Strategy {
	if f.Strategy != "" {
		return f.Strategy
	}

	m.mu.RLock()
	s, ok := m.handlers[f.Kind()]
	m.mu.RUnlock()
	if ok {
		return s
	}

	switch {
	case f.Severity == domain.SeverityCritical:
		return domain.StrategyEscalate
	case f.Kind() == domain.KindNetwork || f.Kind() == domain.KindTimeout:
		return domain.StrategyRetry
	case f.Kind() == domain.KindValidation:
		return domain.StrategyFallback
	case f.RollbackData != nil || opts.Rollback != nil:
		return domain.StrategyRollback
	}
	return domain.StrategyRetry
}

// HandleError runs one recovery pipeline for f inside the breaker for the
// chosen strategy (or opts.Resource).
func (m *Manager) HandleError(
	ctx context.Context,
	f *domain.RecoverableFailure,
	opts Options,
) (Result, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Severity == "" {
		f.Severity = domain.SeverityMedium
	}
	if f.MaxAttempts <= 0 {
		f.MaxAttempts = opts.MaxAttempts
		if f.MaxAttempts <= 0 {
			f.MaxAttempts = m.cfg.Retry.MaxAttempts
		}
	}
	if f.AttemptCount > f.MaxAttempts {
		f.AttemptCount = f.MaxAttempts
	}

	name := m.SelectStrategy(f, opts)
	strategy, ok := m.strategies[name]
	if !ok {
		return Result{Strategy: name}, newUnrecoverable(f, name, fmt.Errorf("%w: %s", ErrUnknownStrategy, name))
	}
	f.Strategy = name

	resource := opts.Resource
	if resource == "" {
		resource = string(name)
	}

	type outcome struct {
		res Result
		err error
	}

	v, err := m.breakers.Get(resource).Execute(ctx, func(ctx context.Context) (any, error) {
		res, err := strategy.Recover(ctx, f, opts)
		var ue *UnrecoverableError
		if errors.As(err, &ue) && ue.Escalated {
			// Delivered escalations are a working strategy.
			return outcome{res: res, err: err}, nil
		}
		if err != nil {
			return nil, err
		}
		return outcome{res: res}, nil
	}, nil)

	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			err = newUnrecoverable(f, name, err)
		}
		m.track(f, name, false)
		slog.Warn("Recovery failed", "failure", f.ID, "strategy", name, "error", err)
		return Result{Strategy: name}, err
	}

	o := v.(outcome)
	m.track(f, name, o.err == nil)
	if o.err != nil {
		return Result{Strategy: name}, o.err
	}
	o.res.Strategy = name
	return o.res, nil
}

// Start launches the queue processor.
func (m *Manager) Start(ctx context.Context) {
	m.queue.Start(ctx)
}

// Stop halts the queue processor.
func (m *Manager) Stop() {
	m.queue.Stop()
}

func (m *Manager) record(ctx context.Context, ev audit.Event, level domain.AuditLevel) {
	if m.recorder == nil {
		return
	}
	if _, err := m.recorder.Log(ctx, ev, level); err != nil {
		slog.Warn("Failed to record recovery event", "action", ev.Action, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
