// Package validation checks analysis parameters against domain bounds before
// they reach a computation. Every call is audited.
package validation

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/metrics"
)

// CustomRule inspects a value that already passed the built-in checks and
// returns a non-nil error describing a violation.
type CustomRule func(value any) error

// Recorder receives one VALIDATION event per call.
type Recorder interface {
	Log(ctx context.Context, ev audit.Event, level domain.AuditLevel) (domain.AuditEntry, error)
}

// Result of a successful validation.
type Result struct {
	Valid bool
	// Value is the sanitised value: int64 for integers, float64 for floats,
	// []float64 or [][]float64 for numeric arrays and matrices.
	Value any
}

// Validator holds the immutable rule table and caller-registered custom rules.
type Validator struct {
	rules    map[string]BoundsRule
	recorder Recorder
	now      func() time.Time

	mu     sync.RWMutex
	custom map[string][]CustomRule
}

// NewValidator creates a validator over the default rules merged with
// overrides. recorder may be nil.
func NewValidator(overrides map[string]BoundsRule, recorder Recorder) *Validator {
	rules := DefaultRules()
	maps.Copy(rules, overrides)
	return &Validator{
		rules:    rules,
		recorder: recorder,
		now:      time.Now,
		custom:   make(map[string][]CustomRule),
	}
}

// Rule returns the rule registered for name.
func (v *Validator) Rule(name string) (BoundsRule, bool) {
	r, ok := v.rules[name]
	return r, ok
}

// AddCustomRule registers an extra check for name. Custom rules run after
// the built-in ones and can only add failures.
func (v *Validator) AddCustomRule(name string, rule CustomRule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.custom[name] = append(v.custom[name], rule)
}

// Validate checks value against the rule registered for name. Parameters
// without a rule or custom rules pass unchanged.
func (v *Validator) Validate(ctx context.Context, name string, value any) (Result, error) {
	rule, ok := v.rules[name]
	if !ok {
		return v.ValidateWith(ctx, name, value, nil)
	}
	return v.ValidateWith(ctx, name, value, &rule)
}

// ValidateWith checks value against rule. A failed check returns a
// *domain.ValidationFailure naming the first violated constraint; the
// context lists every violation.
func (v *Validator) ValidateWith(ctx context.Context, name string, value any, rule *BoundsRule) (Result, error) {
	start := time.Now()

	var (
		violations []string
		sanitized  = value
	)
	if rule != nil {
		sanitized, violations = check(value, *rule)
	}

	v.mu.RLock()
	custom := v.custom[name]
	v.mu.RUnlock()
	for _, c := range custom {
		if err := c(value); err != nil {
			violations = append(violations, err.Error())
		}
	}

	var err error
	if len(violations) > 0 {
		failure := &domain.ValidationFailure{
			Field:      name,
			Value:      value,
			Constraint: violations[0],
			Context:    map[string]any{"violations": violations},
			Timestamp:  v.now().UTC(),
		}
		if rule != nil {
			failure.Context["kind"] = string(rule.Kind)
			if rule.Description != "" {
				failure.Context["expected"] = rule.Description
			}
		}
		err = failure
	}

	v.report(ctx, name, value, violations, time.Since(start))
	if err != nil {
		return Result{}, err
	}
	return Result{Valid: true, Value: sanitized}, nil
}

func (v *Validator) report(ctx context.Context, name string, value any, violations []string, d time.Duration) {
	result := domain.ResultSuccess
	level := domain.LevelDebug
	details := map[string]any{
		"parameter": name,
		"value":     value,
	}
	if len(violations) > 0 {
		result = domain.ResultFailed
		level = domain.LevelWarning
		details["violations"] = violations
	}
	metrics.Validations.WithLabelValues(name, result).Inc()

	if v.recorder == nil {
		return
	}
	if _, err := v.recorder.Log(ctx, audit.Event{
		Action:   "validate_parameter",
		Category: domain.AuditValidation,
		Details:  details,
		Result:   result,
		Duration: d,
	}, level); err != nil {
		slog.Warn("Failed to audit validation", "parameter", name, "error", err)
	}
}
