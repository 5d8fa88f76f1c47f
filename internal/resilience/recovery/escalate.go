package recovery

import (
	"context"
	"fmt"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Escalator is the external escalation channel.
type Escalator interface {
	Escalate(ctx context.Context, f *domain.RecoverableFailure) error
}

type escalateStrategy struct {
	m *Manager
}

func (s *escalateStrategy) Name() domain.Strategy { return domain.StrategyEscalate }

// Recover notifies the escalation channel and always re-raises as critical.
// The error is marked Escalated only when the channel accepted the failure.
func (s *escalateStrategy) Recover(
	ctx context.Context,
	f *domain.RecoverableFailure,
	opts Options,
) (Result, error) {
	f.Severity = domain.SeverityCritical

	cause := f.Cause
	if cause == nil {
		cause = fmt.Errorf("%s", f.Message)
	}

	ue := newUnrecoverable(f, domain.StrategyEscalate, cause)
	if s.m.escalator == nil {
		// Nothing received the failure; it counts against the breaker.
		return Result{}, ue
	}
	if err := s.m.escalator.Escalate(ctx, f); err != nil {
		return Result{}, newUnrecoverable(f, domain.StrategyEscalate,
			fmt.Errorf("escalation failed: %w (original: %v)", err, cause))
	}
	ue.Escalated = true
	return Result{}, ue
}
