package recovery

import (
	"context"
	"log/slog"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
)

type ignoreStrategy struct {
	m *Manager
}

func (s *ignoreStrategy) Name() domain.Strategy { return domain.StrategyIgnore }

func (s *ignoreStrategy) Recover(
	ctx context.Context,
	f *domain.RecoverableFailure,
	opts Options,
) (Result, error) {
	slog.Info("Ignoring failure", "failure", f.ID, "message", f.Message)
	s.m.record(ctx, audit.Event{
		Action:   "failure_ignored",
		Category: domain.AuditRecovery,
		Result:   domain.ResultIgnored,
		Details: map[string]any{
			"failureId": f.ID,
			"kind":      string(f.Kind()),
			"message":   f.Message,
		},
	}, domain.LevelInfo)
	return Result{Success: true, Ignored: true, Strategy: domain.StrategyIgnore}, nil
}
