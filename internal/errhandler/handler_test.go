package errhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/session"
	"github.com/vietddude/faultline/internal/resilience/breaker"
	"github.com/vietddude/faultline/internal/resilience/recovery"
	"github.com/vietddude/faultline/internal/validation"
)

// =============================================================================
// Fixtures
// =============================================================================

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *fakeNotifier) all() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.sent...)
}

type fakeEscalator struct {
	mu    sync.Mutex
	count int
}

func (e *fakeEscalator) Escalate(ctx context.Context, f *domain.RecoverableFailure) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count++
	return nil
}

type fixture struct {
	handler  *Handler
	logger   *audit.Logger
	manager  *recovery.Manager
	notifier *fakeNotifier
	now      time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	sp := session.NewFixed("analyst-7", "session-1")
	logger := audit.NewLogger(audit.Config{}, nil, sp)
	manager := recovery.NewManager(
		recovery.Config{Retry: recovery.RetryConfig{MaxAttempts: 3}},
		breaker.NewRegistry(breaker.DefaultConfig),
		&fakeEscalator{},
		logger,
	)
	manager.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	f := &fixture{
		logger:   logger,
		manager:  manager,
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.handler = New(cfg, manager, logger, f.notifier, sp)
	f.handler.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) lastAudit(t *testing.T) domain.AuditEntry {
	t.Helper()
	entries := f.logger.Entries()
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

// =============================================================================
// Categorisation
// =============================================================================

func TestCategorize(t *testing.T) {
	tests := []struct {
		err    error
		expect domain.Category
	}{
		{&domain.ValidationFailure{Field: "alpha"}, domain.CategoryValidation},
		{domain.NewError(domain.KindTimeout, "slow"), domain.CategoryNetwork},
		{domain.NewError(domain.KindSecurity, "bad hmac"), domain.CategoryDataIntegrity},
		{context.DeadlineExceeded, domain.CategoryNetwork},
		{errors.New("connection reset by peer"), domain.CategoryNetwork},
		{errors.New("401 unauthenticated"), domain.CategoryAuthentication},
		{errors.New("403 Forbidden"), domain.CategoryAuthorization},
		{errors.New("solver did not converge"), domain.CategoryCalculation},
		{errors.New("runtime error: index out of range [3]"), domain.CategorySystem},
		{errors.New("checksum mismatch on result"), domain.CategoryDataIntegrity},
		{errors.New("missing config value"), domain.CategoryConfiguration},
		{errors.New("finance report unavailable"), domain.CategoryUnknown},
		{&domain.RecoverableFailure{FailureKind: domain.KindCalculation}, domain.CategoryCalculation},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, Categorize(tt.err), "Categorize(%q)", tt.err)
	}
}

func TestSlidingWindow(t *testing.T) {
	w := NewSlidingWindow(2, time.Second)
	t0 := time.Unix(100, 0)

	assert.True(t, w.Allow(t0))
	assert.True(t, w.Allow(t0.Add(100*time.Millisecond)))
	assert.False(t, w.Allow(t0.Add(500*time.Millisecond)))
	assert.True(t, w.Allow(t0.Add(1001*time.Millisecond)))
	assert.Equal(t, 2, w.Count(t0.Add(1001*time.Millisecond)))
}

// =============================================================================
// HandleError
// =============================================================================

func TestHandleError_ValidationScenario(t *testing.T) {
	f := newFixture(t, Config{})
	v := validation.NewValidator(nil, f.logger)

	_, err := v.Validate(context.Background(), "degreesOfFreedom", 0)
	var vf *domain.ValidationFailure
	require.ErrorAs(t, err, &vf)

	out := f.handler.HandleError(context.Background(), err, ContextData{Module: "anova", Operation: "submit"})
	f.handler.Wait()

	assert.Equal(t, domain.CategoryValidation, out.Category)
	assert.False(t, out.Handled)
	assert.Empty(t, out.Strategy, "no recovery without a fallback value")
	require.NotNil(t, out.Notification)
	assert.Equal(t, domain.NotifyWarning, out.Notification.Level)
	assert.Contains(t, out.Notification.Message, "degreesOfFreedom")

	entry := f.lastAudit(t)
	assert.Equal(t, domain.AuditValidation, entry.Category)
	assert.Equal(t, domain.ResultFailed, entry.Result)
	assert.Equal(t, out.AuditEntryID, entry.ID)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.NotifyWarning, sent[0].Level)
	assert.Zero(t, f.manager.Statistics().Total)
}

func TestHandleError_ValidationWithFallback(t *testing.T) {
	f := newFixture(t, Config{})
	err := &domain.ValidationFailure{Field: "alpha", Value: 2.0, Constraint: "must be less than 1"}

	out := f.handler.HandleError(context.Background(), err, ContextData{Fallback: 0.05, HasFallback: true})
	f.handler.Wait()

	assert.True(t, out.Handled)
	assert.Equal(t, 0.05, out.Result)
	assert.Equal(t, domain.StrategyFallback, out.Strategy)
	assert.Equal(t, domain.ResultRecovered, f.lastAudit(t).Result)
}

func TestHandleError_NetworkRetried(t *testing.T) {
	f := newFixture(t, Config{})
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("connection refused")
		}
		return map[string]any{"pValue": 0.03}, nil
	}

	out := f.handler.HandleError(context.Background(), errors.New("connection refused"), ContextData{
		Recovery: recovery.Options{Operation: op},
	})
	f.handler.Wait()

	assert.True(t, out.Handled)
	assert.Equal(t, domain.CategoryNetwork, out.Category)
	assert.Equal(t, domain.StrategyRetry, out.Strategy)
	assert.Equal(t, 2, calls)
	assert.Equal(t, domain.NotifyInfo, out.Notification.Level)
}

func TestHandleError_CalculationRollsBackAfterRetry(t *testing.T) {
	f := newFixture(t, Config{})
	attempts := 0
	rolledBack := false

	out := f.handler.HandleError(context.Background(), domain.NewError(domain.KindCalculation, "did not converge"), ContextData{
		Recovery: recovery.Options{
			Operation: func(ctx context.Context) (any, error) {
				attempts++
				return nil, errors.New("did not converge")
			},
			Rollback: func(ctx context.Context) (any, error) {
				rolledBack = true
				return nil, nil
			},
		},
		RollbackData: map[string]any{"iteration": 4},
	})

	assert.Equal(t, 3, attempts)
	assert.True(t, rolledBack)
	assert.True(t, out.Handled)
	assert.Equal(t, domain.StrategyRollback, out.Strategy)
	assert.Equal(t, map[string]any{"iteration": 4}, out.Result)
}

func TestHandleError_AuthenticationNotRetried(t *testing.T) {
	f := newFixture(t, Config{})
	calls := 0

	out := f.handler.HandleError(context.Background(), domain.NewError(domain.KindAuthentication, "token expired"), ContextData{
		Recovery: recovery.Options{Operation: func(ctx context.Context) (any, error) {
			calls++
			return nil, nil
		}},
	})

	assert.False(t, out.Handled)
	assert.Zero(t, calls)
	assert.Equal(t, domain.NotifyError, out.Notification.Level)
	assert.Equal(t, domain.AuditSecurity, f.lastAudit(t).Category)
}

func TestHandleError_SystemUsesGenericMessage(t *testing.T) {
	f := newFixture(t, Config{})

	out := f.handler.HandleError(context.Background(), errors.New("runtime error: nil pointer dereference"), ContextData{})

	assert.Equal(t, domain.CategorySystem, out.Category)
	assert.Equal(t, domain.SeverityCritical, out.Severity)
	assert.Equal(t, GenericMessage, out.Notification.Message)
	assert.Equal(t, domain.NotifyCritical, out.Notification.Level)

	entry := f.lastAudit(t)
	assert.Equal(t, domain.AuditSystem, entry.Category)
	assert.Contains(t, entry.Details["message"], "nil pointer")
}

func TestHandleError_DataIntegrityEscalated(t *testing.T) {
	f := newFixture(t, Config{})

	out := f.handler.HandleError(context.Background(), errors.New("checksum mismatch on result"), ContextData{})

	assert.False(t, out.Handled)
	assert.Equal(t, domain.StrategyEscalate, out.Strategy)
	assert.Equal(t, domain.SeverityCritical, out.Severity)
	var ue *recovery.UnrecoverableError
	require.ErrorAs(t, out.Err, &ue)
	assert.True(t, ue.Escalated)
}

func TestHandleError_RateLimited(t *testing.T) {
	f := newFixture(t, Config{MaxErrorRate: 5, RateWindow: time.Second})
	ctx := context.Background()
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	}

	for i := 0; i < 5; i++ {
		out := f.handler.HandleError(ctx, errors.New("connection reset"), ContextData{Recovery: recovery.Options{Operation: op}})
		assert.False(t, out.RateLimited)
		f.now = f.now.Add(100 * time.Millisecond)
	}
	require.Equal(t, 5, calls)

	out := f.handler.HandleError(ctx, errors.New("connection reset"), ContextData{Recovery: recovery.Options{Operation: op}})
	assert.True(t, out.RateLimited)
	assert.False(t, out.Handled)
	assert.Equal(t, 5, calls, "no recovery while rate limited")
	assert.Equal(t, domain.ResultRateLimited, f.lastAudit(t).Result)

	f.now = f.now.Add(time.Second)
	out = f.handler.HandleError(ctx, errors.New("connection reset"), ContextData{Recovery: recovery.Options{Operation: op}})
	assert.False(t, out.RateLimited)

	stats := f.handler.Statistics()
	assert.EqualValues(t, 7, stats.Total)
	assert.EqualValues(t, 1, stats.RateLimited)
	assert.EqualValues(t, 6, stats.Handled)
	assert.EqualValues(t, 6, stats.Recovery.Recovered)
}

func TestHandleError_HandlerLookupOrder(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	var used []string

	f.handler.RegisterKind(domain.KindNetwork, func(ctx context.Context, err error, ec *ErrorContext) (any, bool, error) {
		used = append(used, "network:"+string(ec.Kind))
		return "cached", true, nil
	})
	f.handler.RegisterCategory(domain.CategoryCalculation, func(ctx context.Context, err error, ec *ErrorContext) (any, bool, error) {
		used = append(used, "calculation")
		return nil, false, nil
	})

	// Timeout inherits the network handler.
	out := f.handler.HandleError(ctx, domain.NewError(domain.KindTimeout, "deadline"), ContextData{})
	assert.True(t, out.Handled)
	assert.Equal(t, "cached", out.Result)

	// An unhandled category handler falls through to recovery.
	out = f.handler.HandleError(ctx, domain.NewError(domain.KindCalculation, "singular"), ContextData{
		Recovery: recovery.Options{Operation: func(ctx context.Context) (any, error) { return 1.0, nil }},
	})
	assert.True(t, out.Handled)
	assert.Equal(t, domain.StrategyRetry, out.Strategy)

	assert.Equal(t, []string{"network:timeout", "calculation"}, used)
}

func TestHandleError_SetClockWhileHandling(t *testing.T) {
	f := newFixture(t, Config{MaxErrorRate: 100})
	ctx := context.Background()
	base := f.now

	var mu sync.Mutex
	var stamps []time.Time
	f.handler.RegisterKind(domain.KindNetwork, func(ctx context.Context, err error, ec *ErrorContext) (any, bool, error) {
		mu.Lock()
		stamps = append(stamps, ec.Timestamp)
		mu.Unlock()
		return "cached", true, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			at := base.Add(time.Duration(i) * time.Second)
			f.handler.SetClock(func() time.Time { return at })
		}
	}()
	for i := 0; i < 20; i++ {
		out := f.handler.HandleError(ctx, domain.NewError(domain.KindNetwork, "connection reset"), ContextData{})
		assert.True(t, out.Handled)
	}
	wg.Wait()

	later := base.Add(time.Hour)
	f.handler.SetClock(func() time.Time { return later })
	f.handler.HandleError(ctx, domain.NewError(domain.KindNetwork, "connection reset"), ContextData{})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 21)
	for _, ts := range stamps[:20] {
		assert.False(t, ts.Before(base))
	}
	assert.True(t, later.Equal(stamps[20]))
}

func TestHandleError_CriticalThresholdNoticeOnce(t *testing.T) {
	f := newFixture(t, Config{CriticalThreshold: 2})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.handler.HandleError(ctx, errors.New("runtime error: out of memory"), ContextData{})
	}
	f.handler.Wait()

	notices := 0
	for _, n := range f.notifier.all() {
		if n.ErrorID == "" && n.Level == domain.NotifyCritical {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
	assert.EqualValues(t, 4, f.handler.Statistics().Critical)

	found := false
	for _, e := range f.logger.Entries() {
		if e.Action == "critical_threshold_reached" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestHandleError_RedactsInputs(t *testing.T) {
	f := newFixture(t, Config{})

	f.handler.HandleError(context.Background(), errors.New("missing config value"), ContextData{
		Inputs: map[string]any{"apiToken": "abc", "sampleSize": 10},
	})

	inputs := f.lastAudit(t).Details["inputs"].(map[string]any)
	assert.Equal(t, audit.Redacted, inputs["apiToken"])
	assert.Equal(t, 10.0, inputs["sampleSize"])
}
