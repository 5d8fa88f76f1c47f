package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

var (
	// ErrNoOperation is returned when a strategy needs the original unit of work but none was supplied
	ErrNoOperation = errors.New("no operation supplied")

	// ErrNoRollback is returned when rollback is selected without a compensating operation
	ErrNoRollback = errors.New("no rollback operation supplied")

	// ErrUnknownStrategy is returned for a strategy name with no implementation
	ErrUnknownStrategy = errors.New("unknown recovery strategy")
)

// Operation is a unit of work under recovery, typically a remote submission.
type Operation func(ctx context.Context) (any, error)

// Options carries everything a strategy may need besides the failure itself.
type Options struct {
	// Operation is re-invoked by retry, cache and queue.
	Operation Operation
	// Rollback is the compensating operation.
	Rollback Operation
	// CacheKey defaults to the failure id.
	CacheKey string
	// Resource names the breaker; defaults to the strategy name.
	Resource string
	// ValueType picks the type-based fallback default.
	ValueType domain.ValueType
	// Timeout bounds each invocation of Operation or Rollback.
	Timeout time.Duration
	// MaxAttempts overrides the configured retry budget when the failure has none.
	MaxAttempts int
}

// Result is the outcome of a successful recovery.
type Result struct {
	Success  bool            `json:"success"`
	Value    any             `json:"value,omitempty"`
	Strategy domain.Strategy `json:"strategy"`
	Attempts int             `json:"attempts,omitempty"`
	Stale    bool            `json:"stale,omitempty"`
	Ignored  bool            `json:"ignored,omitempty"`
	Receipt  *Receipt        `json:"receipt,omitempty"`
}

// Strategy is one recovery policy.
type Strategy interface {
	Name() domain.Strategy
	Recover(ctx context.Context, f *domain.RecoverableFailure, opts Options) (Result, error)
}

// UnrecoverableError is raised when a strategy gives up. The failure is
// marked CanRecover=false.
type UnrecoverableError struct {
	Failure  *domain.RecoverableFailure
	Strategy domain.Strategy
	Err      error
	// Escalated is set when the escalation channel accepted the failure.
	Escalated bool
}

func newUnrecoverable(f *domain.RecoverableFailure, s domain.Strategy, err error) *UnrecoverableError {
	f.CanRecover = false
	return &UnrecoverableError{Failure: f, Strategy: s, Err: err}
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("%s recovery failed for %s: %v", e.Strategy, e.Failure.ID, e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

func (e *UnrecoverableError) Kind() domain.Kind { return e.Failure.Kind() }

// Severity of the wrapped failure.
func (e *UnrecoverableError) Severity() domain.Severity { return e.Failure.Severity }

// Retryable reports whether another attempt could change the outcome.
// Input, credential, configuration and integrity failures are final.
func Retryable(err error) bool {
	var k domain.Kinded
	if !errors.As(err, &k) {
		return true
	}
	switch k.Kind() {
	case domain.KindValidation,
		domain.KindAuthentication,
		domain.KindAuthorization,
		domain.KindConfiguration,
		domain.KindDataIntegrity,
		domain.KindSecurity:
		return false
	}
	return true
}

// run invokes op, racing it against timeout when one is set.
func run(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   any
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := op(tctx)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		return o.v, o.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.WrapError(
			domain.KindTimeout,
			fmt.Sprintf("operation timed out after %s", timeout),
			tctx.Err(),
		)
	}
}
