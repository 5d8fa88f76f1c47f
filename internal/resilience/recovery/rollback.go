package recovery

import (
	"context"
	"log/slog"

	"github.com/vietddude/faultline/internal/core/domain"
)

// RollbackMarker is returned when a rollback succeeds without a snapshot.
type RollbackMarker struct {
	RolledBack bool   `json:"rolledBack"`
	FailureID  string `json:"failureId"`
}

type rollbackStrategy struct {
	m *Manager
}

func (s *rollbackStrategy) Name() domain.Strategy { return domain.StrategyRollback }

// Recover runs the compensating operation. A failed rollback is always
// critical and escalated.
func (s *rollbackStrategy) Recover(
	ctx context.Context,
	f *domain.RecoverableFailure,
	opts Options,
) (Result, error) {
	if opts.Rollback == nil {
		return Result{}, s.fail(ctx, f, ErrNoRollback)
	}

	if _, err := run(ctx, opts.Rollback, opts.Timeout); err != nil {
		return Result{}, s.fail(ctx, f, err)
	}

	var value any = RollbackMarker{RolledBack: true, FailureID: f.ID}
	if f.RollbackData != nil {
		value = f.RollbackData
	}
	return Result{Success: true, Value: value, Strategy: domain.StrategyRollback}, nil
}

func (s *rollbackStrategy) fail(ctx context.Context, f *domain.RecoverableFailure, err error) error {
	f.Severity = domain.SeverityCritical
	if s.m.escalator != nil {
		if escErr := s.m.escalator.Escalate(ctx, f); escErr != nil {
			slog.Error("Failed to escalate rollback failure", "failure", f.ID, "error", escErr)
		}
	}
	return newUnrecoverable(f, domain.StrategyRollback, err)
}
