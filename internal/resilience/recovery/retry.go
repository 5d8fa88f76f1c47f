package recovery

import (
	"context"
	"log/slog"

	"github.com/vietddude/faultline/internal/core/domain"
)

type retryStrategy struct {
	m *Manager
}

func (s *retryStrategy) Name() domain.Strategy { return domain.StrategyRetry }

// Recover re-invokes the operation until it succeeds or the failure's
// attempt budget is spent. AttemptCount never exceeds MaxAttempts.
func (s *retryStrategy) Recover(
	ctx context.Context,
	f *domain.RecoverableFailure,
	opts Options,
) (Result, error) {
	if opts.Operation == nil {
		return Result{}, newUnrecoverable(f, domain.StrategyRetry, ErrNoOperation)
	}

	lastErr := f.Cause
	for f.AttemptCount < f.MaxAttempts {
		f.AttemptCount++
		v, err := run(ctx, opts.Operation, opts.Timeout)
		if err == nil {
			return Result{
				Success:  true,
				Value:    v,
				Strategy: domain.StrategyRetry,
				Attempts: f.AttemptCount,
			}, nil
		}
		lastErr = err

		if !Retryable(err) {
			slog.Debug("Retry stopped on final error", "failure", f.ID, "error", err)
			break
		}
		if f.AttemptCount >= f.MaxAttempts {
			break
		}

		delay := s.m.backoff.GetDelay(f.AttemptCount)
		slog.Debug("Retrying operation",
			"failure", f.ID,
			"attempt", f.AttemptCount,
			"maxAttempts", f.MaxAttempts,
			"delay", delay,
		)
		if err := s.m.sleep(ctx, delay); err != nil {
			return Result{}, newUnrecoverable(f, domain.StrategyRetry, err)
		}
	}

	if lastErr == nil {
		lastErr = ErrNoOperation
	}
	return Result{}, newUnrecoverable(f, domain.StrategyRetry, lastErr)
}
