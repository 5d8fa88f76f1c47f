package domain

import "fmt"

// Strategy names a recovery policy.
type Strategy string

const (
	StrategyRetry    Strategy = "retry"
	StrategyRollback Strategy = "rollback"
	StrategyFallback Strategy = "fallback"
	StrategyCache    Strategy = "cache"
	StrategyQueue    Strategy = "queue"
	StrategyIgnore   Strategy = "ignore"
	StrategyEscalate Strategy = "escalate"
)

// Strategies lists every recovery policy.
var Strategies = []Strategy{
	StrategyRetry,
	StrategyRollback,
	StrategyFallback,
	StrategyCache,
	StrategyQueue,
	StrategyIgnore,
	StrategyEscalate,
}

// ValueType selects a type-based fallback default.
type ValueType string

const (
	ValueArray   ValueType = "array"
	ValueObject  ValueType = "object"
	ValueNumber  ValueType = "number"
	ValueString  ValueType = "string"
	ValueBoolean ValueType = "boolean"
)

// RecoverableFailure carries enough context to attempt automated recovery.
// AttemptCount is mutated in place by the retry strategy and never exceeds
// MaxAttempts.
type RecoverableFailure struct {
	ID            string         `json:"id"`
	Message       string         `json:"message"`
	FailureKind   Kind           `json:"kind"`
	Severity      Severity       `json:"severity"`
	Strategy      Strategy       `json:"strategy,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Cause         error          `json:"-"`
	AttemptCount  int            `json:"attemptCount"`
	MaxAttempts   int            `json:"maxAttempts"`
	CanRecover    bool           `json:"canRecover"`
	FallbackValue any            `json:"fallbackValue,omitempty"`
	HasFallback   bool           `json:"-"`
	RollbackData  any            `json:"rollbackData,omitempty"`
}

func (f *RecoverableFailure) Kind() Kind {
	if f.FailureKind == "" {
		return KindRecoverable
	}
	return f.FailureKind
}

func (f *RecoverableFailure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Cause)
	}
	return f.Message
}

func (f *RecoverableFailure) Unwrap() error { return f.Cause }

// SetFallback registers an explicit fallback value, including nil.
func (f *RecoverableFailure) SetFallback(v any) {
	f.FallbackValue = v
	f.HasFallback = true
}

// ErrorStatistics are rolling counters; derived, not authoritative.
type ErrorStatistics struct {
	Total      int64              `json:"total"`
	Recovered  int64              `json:"recovered"`
	Failed     int64              `json:"failed"`
	ByStrategy map[Strategy]int64 `json:"byStrategy"`
	BySeverity map[Severity]int64 `json:"bySeverity"`
}
