// Package errhandler is the single entry point for failures: it classifies
// them, rate-limits, dispatches to registered handlers or the recovery
// manager, audits the outcome and notifies the user.
package errhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/session"
	"github.com/vietddude/faultline/internal/metrics"
	"github.com/vietddude/faultline/internal/resilience/recovery"
)

// Config holds error handler settings.
type Config struct {
	MaxErrorRate      int           `yaml:"max_error_rate"`
	RateWindow        time.Duration `yaml:"rate_window"`
	CriticalThreshold int           `yaml:"critical_threshold"`
	NotifyTimeout     time.Duration `yaml:"notify_timeout"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxErrorRate:      10,
	RateWindow:        time.Second,
	CriticalThreshold: 5,
	NotifyTimeout:     5 * time.Second,
}

// Notifier displays a notification. It must not be relied on to return
// promptly; the handler never waits for it.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// Recorder appends audit entries; *audit.Logger satisfies it.
type Recorder interface {
	Log(ctx context.Context, ev audit.Event, level domain.AuditLevel) (domain.AuditEntry, error)
}

// Recoverer runs a recovery pipeline; *recovery.Manager satisfies it.
type Recoverer interface {
	HandleError(ctx context.Context, f *domain.RecoverableFailure, opts recovery.Options) (recovery.Result, error)
	Statistics() domain.ErrorStatistics
}

// ContextData is what the caller knows about the failing operation.
type ContextData struct {
	Module    string
	Operation string
	ActorID   string
	Inputs    map[string]any
	TraceID   string

	// Severity and Strategy override the category policy.
	Severity domain.Severity
	Strategy domain.Strategy

	// Recovery carries the unit of work, rollback and cache options.
	Recovery     recovery.Options
	Fallback     any
	HasFallback  bool
	RollbackData any
}

// ErrorContext is built by the handler for every failure and passed to
// registered handlers.
type ErrorContext struct {
	ErrorID   string
	ActorID   string
	SessionID string
	Module    string
	Operation string
	Inputs    map[string]any
	TraceID   string
	Stack     []string
	Category  domain.Category
	Kind      domain.Kind
	Severity  domain.Severity
	Timestamp time.Time
}

// HandlerFunc resolves a failure. handled=false passes it on unresolved.
type HandlerFunc func(ctx context.Context, err error, ec *ErrorContext) (result any, handled bool, herr error)

// Outcome is returned for every handled error.
type Outcome struct {
	ErrorID      string               `json:"errorId"`
	Handled      bool                 `json:"handled"`
	Result       any                  `json:"result,omitempty"`
	Category     domain.Category      `json:"category"`
	Severity     domain.Severity      `json:"severity"`
	Strategy     domain.Strategy      `json:"strategy,omitempty"`
	DurationMs   float64              `json:"durationMs"`
	RateLimited  bool                 `json:"rateLimited,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
	AuditEntryID string               `json:"auditEntryId,omitempty"`
	// Err is the failure left after recovery, nil when handled.
	Err error `json:"-"`
}

// Handler orchestrates failure handling. Construct one per process.
type Handler struct {
	cfg      Config
	recovery Recoverer
	recorder Recorder
	notifier Notifier
	session  session.Provider
	limiter  *SlidingWindow

	clockMu sync.Mutex
	now     func() time.Time

	mu         sync.RWMutex
	byKind     map[domain.Kind]HandlerFunc
	byCategory map[domain.Category]HandlerFunc
	stats      Stats
	escalated  bool

	notifyWG sync.WaitGroup
}

// New creates a handler. Any collaborator may be nil.
func New(
	cfg Config,
	rec Recoverer,
	recorder Recorder,
	notifier Notifier,
	sp session.Provider,
) *Handler {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultConfig.RateWindow
	}
	if cfg.MaxErrorRate == 0 {
		cfg.MaxErrorRate = DefaultConfig.MaxErrorRate
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = DefaultConfig.CriticalThreshold
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultConfig.NotifyTimeout
	}
	if sp == nil {
		sp = session.NewStatic("")
	}
	return &Handler{
		cfg:        cfg,
		recovery:   rec,
		recorder:   recorder,
		notifier:   notifier,
		session:    sp,
		limiter:    NewSlidingWindow(cfg.MaxErrorRate, cfg.RateWindow),
		now:        time.Now,
		byKind:     make(map[domain.Kind]HandlerFunc),
		byCategory: make(map[domain.Category]HandlerFunc),
		stats:      newStats(),
	}
}

// SetClock replaces the time source used by the rate limiter.
func (h *Handler) SetClock(now func() time.Time) {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	h.now = now
}

func (h *Handler) clock() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.now()
}

// RegisterKind installs a handler for a failure kind and its descendants.
func (h *Handler) RegisterKind(kind domain.Kind, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byKind[kind] = fn
}

// RegisterCategory installs a handler for a whole category.
func (h *Handler) RegisterCategory(c domain.Category, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byCategory[c] = fn
}

// HandleError processes one failure end to end.
func (h *Handler) HandleError(ctx context.Context, err error, cd ContextData) Outcome {
	start := time.Now()
	if err == nil {
		err = errors.New("nil error reported")
	}

	category := Categorize(err)
	policy := PolicyFor(category)
	ec := h.buildContext(err, cd, category, policy)
	out := Outcome{
		ErrorID:  ec.ErrorID,
		Category: category,
		Severity: ec.Severity,
		Err:      err,
	}

	if !h.limiter.Allow(h.clock()) {
		out.RateLimited = true
		out.DurationMs = msSince(start)
		metrics.RateLimited.Inc()
		h.track(out)
		h.audit(ctx, err, ec, policy, &out)
		slog.Warn("Error rate limit exceeded, skipping recovery",
			"errorId", ec.ErrorID,
			"category", category,
		)
		return out
	}

	h.dispatch(ctx, err, cd, ec, policy, &out)
	out.DurationMs = msSince(start)

	metrics.ErrorsHandled.WithLabelValues(string(category), string(out.Severity)).Inc()
	h.audit(ctx, err, ec, policy, &out)

	n := domain.Notification{
		Level:   NotificationLevel(category, out.Severity, out.Handled),
		Message: UserMessage(err, category, out.Handled),
		ErrorID: ec.ErrorID,
	}
	out.Notification = &n
	h.notify(ctx, n)

	h.track(out)
	if out.Severity == domain.SeverityCritical {
		h.critical(ctx)
	}

	logAttrs := []any{
		"errorId", ec.ErrorID,
		"category", category,
		"severity", out.Severity,
		"handled", out.Handled,
		"strategy", out.Strategy,
		"durationMs", out.DurationMs,
	}
	if out.Handled {
		slog.Info("Error handled", logAttrs...)
	} else {
		slog.Warn("Error not recovered", append(logAttrs, "error", out.Err)...)
	}
	return out
}

func (h *Handler) buildContext(err error, cd ContextData, c domain.Category, p Policy) *ErrorContext {
	actor := cd.ActorID
	if actor == "" {
		actor = h.session.ActorID()
	}
	id := uuid.NewString()
	trace := cd.TraceID
	if trace == "" {
		trace = id
	}

	severity := cd.Severity
	if severity == "" {
		var s interface{ Severity() domain.Severity }
		if errors.As(err, &s) && s.Severity() != "" {
			severity = s.Severity()
		} else {
			severity = p.Severity
		}
	}

	return &ErrorContext{
		ErrorID:   id,
		ActorID:   actor,
		SessionID: h.session.SessionID(),
		Module:    cd.Module,
		Operation: cd.Operation,
		Inputs:    audit.Redact(cd.Inputs, 0),
		TraceID:   trace,
		Stack:     callers(4),
		Category:  c,
		Kind:      KindOf(err, c),
		Severity:  severity,
		Timestamp: h.clock().UTC(),
	}
}

// lookup finds a handler for the kind, then its ancestors, then the category.
func (h *Handler) lookup(ec *ErrorContext) HandlerFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, k := range ec.Kind.Lineage() {
		if fn, ok := h.byKind[k]; ok {
			return fn
		}
	}
	return h.byCategory[ec.Category]
}

func (h *Handler) dispatch(
	ctx context.Context,
	err error,
	cd ContextData,
	ec *ErrorContext,
	p Policy,
	out *Outcome,
) {
	if fn := h.lookup(ec); fn != nil {
		result, handled, herr := fn(ctx, err, ec)
		if handled {
			out.Handled, out.Result, out.Err = true, result, nil
			return
		}
		if herr != nil {
			out.Err = herr
			return
		}
	}
	h.attemptRecovery(ctx, err, cd, ec, p, out)
}

// attemptRecovery delegates to the recovery manager according to the policy. A
// category without a strategy, or a strategy lacking what it needs, is
// surfaced without an attempt.
func (h *Handler) attemptRecovery(
	ctx context.Context,
	err error,
	cd ContextData,
	ec *ErrorContext,
	p Policy,
	out *Outcome,
) {
	strategy := cd.Strategy
	if strategy == "" {
		strategy = p.Strategy
	}
	if h.recovery == nil || strategy == "" || !attemptable(strategy, cd) {
		return
	}

	f := &domain.RecoverableFailure{
		ID:           ec.ErrorID,
		Message:      err.Error(),
		FailureKind:  ec.Kind,
		Severity:     ec.Severity,
		Strategy:     strategy,
		Context:      map[string]any{"module": ec.Module, "operation": ec.Operation},
		Cause:        err,
		MaxAttempts:  p.MaxAttempts,
		CanRecover:   true,
		RollbackData: cd.RollbackData,
	}
	if cd.HasFallback {
		f.SetFallback(cd.Fallback)
	}

	res, rerr := h.recovery.HandleError(ctx, f, cd.Recovery)
	out.Strategy = strategy

	// Calculation: a failed retry rolls back within the same pipeline.
	if rerr != nil && ec.Category == domain.CategoryCalculation &&
		strategy == domain.StrategyRetry && cd.Recovery.Rollback != nil {
		f.Strategy = domain.StrategyRollback
		res, rerr = h.recovery.HandleError(ctx, f, cd.Recovery)
		out.Strategy = domain.StrategyRollback
	}

	out.Severity = f.Severity
	if rerr != nil {
		out.Err = rerr
		return
	}
	out.Handled, out.Result, out.Err = true, res.Value, nil
}

func attemptable(s domain.Strategy, cd ContextData) bool {
	switch s {
	case domain.StrategyRetry, domain.StrategyQueue:
		return cd.Recovery.Operation != nil
	case domain.StrategyCache:
		return cd.Recovery.Operation != nil || cd.Recovery.CacheKey != ""
	case domain.StrategyRollback:
		return cd.Recovery.Rollback != nil
	case domain.StrategyFallback:
		return cd.HasFallback || cd.Recovery.ValueType != ""
	}
	return true
}

func (h *Handler) audit(ctx context.Context, err error, ec *ErrorContext, p Policy, out *Outcome) {
	if h.recorder == nil {
		return
	}

	result := domain.ResultFailed
	switch {
	case out.RateLimited:
		result = domain.ResultRateLimited
	case out.Handled:
		result = domain.ResultRecovered
	}

	details := map[string]any{
		"errorId":   ec.ErrorID,
		"category":  string(ec.Category),
		"kind":      string(ec.Kind),
		"severity":  string(out.Severity),
		"message":   err.Error(),
		"module":    ec.Module,
		"operation": ec.Operation,
		"inputs":    ec.Inputs,
		"traceId":   ec.TraceID,
	}
	if out.Strategy != "" {
		details["strategy"] = string(out.Strategy)
	}
	if out.Err != nil && out.Err != err {
		details["recoveryError"] = out.Err.Error()
	}
	if ec.Category == domain.CategorySystem {
		details["stack"] = ec.Stack
	}
	var vf *domain.ValidationFailure
	if errors.As(err, &vf) {
		details["field"] = vf.Field
		details["constraint"] = vf.Constraint
	}

	entry, aerr := h.recorder.Log(ctx, audit.Event{
		Action:   "error_handled",
		Category: p.Audit,
		Details:  details,
		Result:   result,
		Duration: time.Duration(out.DurationMs * float64(time.Millisecond)),
		ActorID:  ec.ActorID,
	}, auditLevel(out.Severity))
	if aerr != nil {
		slog.Error("Failed to audit error", "errorId", ec.ErrorID, "error", aerr)
		return
	}
	out.AuditEntryID = entry.ID
}

func (h *Handler) notify(ctx context.Context, n domain.Notification) {
	if h.notifier == nil || n.Level == domain.NotifySilent {
		return
	}
	h.notifyWG.Add(1)
	go func() {
		defer h.notifyWG.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.NotifyTimeout)
		defer cancel()
		h.notifier.Notify(nctx, n)
	}()
}

// critical counts critical failures and sends a single escalation notice
// when the threshold is first reached.
func (h *Handler) critical(ctx context.Context) {
	h.mu.Lock()
	count := h.stats.Critical
	fire := !h.escalated && count >= int64(h.cfg.CriticalThreshold)
	if fire {
		h.escalated = true
	}
	h.mu.Unlock()
	if !fire {
		return
	}

	msg := fmt.Sprintf("%d critical errors occurred in this session. Support has been notified.", count)
	slog.Error("Critical error threshold reached", "count", count, "threshold", h.cfg.CriticalThreshold)
	h.notify(ctx, domain.Notification{Level: domain.NotifyCritical, Message: msg})

	if h.recorder != nil {
		if _, err := h.recorder.Log(ctx, audit.Event{
			Action:   "critical_threshold_reached",
			Category: domain.AuditSystem,
			Result:   domain.ResultSuccess,
			Details: map[string]any{
				"count":     count,
				"threshold": h.cfg.CriticalThreshold,
			},
		}, domain.LevelCritical); err != nil {
			slog.Error("Failed to audit critical threshold", "error", err)
		}
	}
}

// Wait blocks until in-flight notifications are delivered.
func (h *Handler) Wait() {
	h.notifyWG.Wait()
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}

func callers(skip int) []string {
	pcs := make([]uintptr, 8)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s:%d", f.Function, f.Line))
		if !more {
			break
		}
	}
	return out
}
