package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/metrics"
)

// QueueConfig controls the deferred-operation processor.
type QueueConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxRetries int           `yaml:"max_retries"`
}

// DefaultQueueConfig provides sensible defaults.
var DefaultQueueConfig = QueueConfig{
	Interval:   5 * time.Second,
	MaxRetries: 5,
}

// Receipt acknowledges a deferred operation.
type Receipt struct {
	ID       string    `json:"id"`
	QueuedAt time.Time `json:"queuedAt"`
	Position int       `json:"position"`
}

type queuedOp struct {
	id      string
	failure *domain.RecoverableFailure
	op      Operation
	timeout time.Duration
	retries int
	nextRun time.Time
}

// Queue defers units of work to a periodic processor.
type Queue struct {
	mu      sync.Mutex
	cfg     QueueConfig
	items   []*queuedOp
	backoff *ExponentialBackoff
	now     func() time.Time
	record  func(ctx context.Context, ev audit.Event, level domain.AuditLevel)

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewQueue creates a stopped queue.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultQueueConfig.Interval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultQueueConfig.MaxRetries
	}
	return &Queue{
		cfg: cfg,
		backoff: &ExponentialBackoff{
			InitialDelay: cfg.Interval,
			MaxDelay:     cfg.Interval * 32,
			Multiplier:   2,
		},
		now: time.Now,
	}
}

// Enqueue schedules op for the next tick and returns immediately.
func (q *Queue) Enqueue(f *domain.RecoverableFailure, op Operation, timeout time.Duration) Receipt {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &queuedOp{
		id:      uuid.NewString(),
		failure: f,
		op:      op,
		timeout: timeout,
		nextRun: q.now(),
	}
	q.items = append(q.items, item)
	metrics.QueueDepth.Set(float64(len(q.items)))

	return Receipt{ID: item.id, QueuedAt: item.nextRun, Position: len(q.items)}
}

// Pending returns the number of queued operations.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ProcessDue runs every operation whose time has come and returns how many ran.
// Safe to call concurrently with Enqueue and repeatedly.
func (q *Queue) ProcessDue(ctx context.Context) int {
	q.mu.Lock()
	now := q.now()
	var due, waiting []*queuedOp
	for _, item := range q.items {
		if !now.Before(item.nextRun) {
			due = append(due, item)
		} else {
			waiting = append(waiting, item)
		}
	}
	q.items = waiting
	q.mu.Unlock()

	var requeue []*queuedOp
	for _, item := range due {
		if ctx.Err() != nil {
			requeue = append(requeue, item)
			continue
		}
		if q.runItem(ctx, item) {
			requeue = append(requeue, item)
		}
	}

	q.mu.Lock()
	q.items = append(q.items, requeue...)
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()

	return len(due)
}

// runItem reports whether the item must be re-queued.
func (q *Queue) runItem(ctx context.Context, item *queuedOp) bool {
	_, err := run(ctx, item.op, item.timeout)
	if err == nil {
		slog.Info("Queued operation completed", "receipt", item.id, "failure", item.failure.ID)
		metrics.RecoveryAttempts.WithLabelValues(string(domain.StrategyQueue), "recovered").Inc()
		q.emit(ctx, item, domain.ResultRecovered, nil)
		return false
	}

	item.retries++
	if item.retries >= q.cfg.MaxRetries {
		slog.Warn("Queued operation exhausted retries",
			"receipt", item.id,
			"failure", item.failure.ID,
			"retries", item.retries,
			"error", err,
		)
		metrics.RecoveryAttempts.WithLabelValues(string(domain.StrategyQueue), "failed").Inc()
		item.failure.CanRecover = false
		q.emit(ctx, item, domain.ResultFailed, err)
		return false
	}

	item.nextRun = q.now().Add(q.backoff.GetDelay(item.retries))
	slog.Debug("Queued operation rescheduled",
		"receipt", item.id,
		"retries", item.retries,
		"nextRun", item.nextRun,
	)
	return true
}

func (q *Queue) emit(ctx context.Context, item *queuedOp, result string, err error) {
	if q.record == nil {
		return
	}
	details := map[string]any{
		"receipt":   item.id,
		"failureId": item.failure.ID,
		"retries":   item.retries,
	}
	level := domain.LevelInfo
	if err != nil {
		details["error"] = err.Error()
		level = domain.LevelError
	}
	q.record(ctx, audit.Event{
		Action:   "queued_operation",
		Category: domain.AuditRecovery,
		Result:   result,
		Details:  details,
	}, level)
}

// Start launches the periodic processor. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	q.running = true

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(q.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.ProcessDue(ctx)
			}
		}
	}(q.done)
}

// Stop halts the processor and waits for the current tick. Safe to call
// when not running.
func (q *Queue) Stop() {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if !q.running {
		return
	}
	q.cancel()
	<-q.done
	q.running = false
}

type queueStrategy struct {
	m *Manager
}

func (s *queueStrategy) Name() domain.Strategy { return domain.StrategyQueue }

func (s *queueStrategy) Recover(
	ctx context.Context,
	f *domain.RecoverableFailure,
	opts Options,
) (Result, error) {
	if opts.Operation == nil {
		return Result{}, newUnrecoverable(f, domain.StrategyQueue, ErrNoOperation)
	}
	receipt := s.m.queue.Enqueue(f, opts.Operation, opts.Timeout)
	slog.Info("Operation deferred to queue", "failure", f.ID, "receipt", receipt.ID)
	return Result{
		Success:  true,
		Value:    receipt,
		Strategy: domain.StrategyQueue,
		Receipt:  &receipt,
	}, nil
}
