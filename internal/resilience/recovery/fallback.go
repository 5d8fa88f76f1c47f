package recovery

import (
	"context"

	"github.com/vietddude/faultline/internal/core/domain"
)

// DefaultValue returns the type-based fallback default.
func DefaultValue(t domain.ValueType) any {
	switch t {
	case domain.ValueArray:
		return []any{}
	case domain.ValueObject:
		return map[string]any{}
	case domain.ValueNumber:
		return 0.0
	case domain.ValueString:
		return ""
	case domain.ValueBoolean:
		return false
	default:
		return nil
	}
}

type fallbackStrategy struct{}

func (fallbackStrategy) Name() domain.Strategy { return domain.StrategyFallback }

func (fallbackStrategy) Recover(
	ctx context.Context,
	f *domain.RecoverableFailure,
	opts Options,
) (Result, error) {
	value := DefaultValue(opts.ValueType)
	if f.HasFallback || f.FallbackValue != nil {
		value = f.FallbackValue
	}
	return Result{Success: true, Value: value, Strategy: domain.StrategyFallback}, nil
}
