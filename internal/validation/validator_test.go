package validation

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeRecorder struct {
	mu     sync.Mutex
	events []audit.Event
	levels []domain.AuditLevel
}

func (r *fakeRecorder) Log(ctx context.Context, ev audit.Event, level domain.AuditLevel) (domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.levels = append(r.levels, level)
	return domain.AuditEntry{}, nil
}

func mustFail(t *testing.T, v *Validator, name string, value any) *domain.ValidationFailure {
	t.Helper()
	_, err := v.Validate(context.Background(), name, value)
	var vf *domain.ValidationFailure
	if !errors.As(err, &vf) {
		t.Fatalf("validate(%s, %v): expected ValidationFailure, got %v", name, value, err)
	}
	return vf
}

func mustPass(t *testing.T, v *Validator, name string, value any) Result {
	t.Helper()
	res, err := v.Validate(context.Background(), name, value)
	if err != nil {
		t.Fatalf("validate(%s, %v): unexpected failure %v", name, value, err)
	}
	if !res.Valid {
		t.Fatalf("validate(%s, %v): expected valid", name, value)
	}
	return res
}

// =============================================================================
// Scalars
// =============================================================================

func TestValidate_ConfidenceLevelBounds(t *testing.T) {
	v := NewValidator(nil, nil)
	for _, bad := range []any{0, 1, 1.5, -0.1, math.NaN(), math.Inf(1), "0.95"} {
		mustFail(t, v, "confidenceLevel", bad)
	}
	res := mustPass(t, v, "confidenceLevel", 0.95)
	if res.Value != 0.95 {
		t.Errorf("expected sanitized 0.95, got %v", res.Value)
	}
}

func TestValidate_SampleSize(t *testing.T) {
	v := NewValidator(nil, nil)
	for _, bad := range []any{0, -10, 1.5} {
		mustFail(t, v, "sampleSize", bad)
	}
	res := mustPass(t, v, "sampleSize", 100)
	if res.Value != int64(100) {
		t.Errorf("expected int64(100), got %#v", res.Value)
	}
	mustPass(t, v, "sampleSize", 100.0)
}

func TestValidate_TypeCheckPrecedesRange(t *testing.T) {
	v := NewValidator(nil, nil)

	vf := mustFail(t, v, "sampleSize", 1.5)
	if vf.Constraint != "must be an integer" {
		t.Errorf("expected type failure first, got %q", vf.Constraint)
	}
	vf = mustFail(t, v, "alpha", true)
	if vf.Constraint != "must be a number" {
		t.Errorf("expected type failure, got %q", vf.Constraint)
	}
	if vf.Field != "alpha" || vf.Kind() != domain.KindValidation {
		t.Errorf("unexpected failure %+v", vf)
	}
}

func TestValidate_UnknownParameterPassesThrough(t *testing.T) {
	v := NewValidator(nil, nil)
	res := mustPass(t, v, "chartColour", "teal")
	if res.Value != "teal" {
		t.Errorf("expected value unchanged, got %v", res.Value)
	}
}

func TestValidate_ExplicitRule(t *testing.T) {
	v := NewValidator(nil, nil)
	rule := BoundsRule{Kind: KindFloat, Min: bound(10), Max: bound(20), ExcludeMax: true}

	if _, err := v.ValidateWith(context.Background(), "threshold", 20.0, &rule); err == nil {
		t.Error("expected exclusive max to reject 20")
	}
	if _, err := v.ValidateWith(context.Background(), "threshold", 10.0, &rule); err != nil {
		t.Errorf("inclusive min must accept 10: %v", err)
	}
}

// =============================================================================
// Arrays
// =============================================================================

func TestValidate_Arrays(t *testing.T) {
	v := NewValidator(nil, nil)

	mustFail(t, v, "data", []float64{})
	mustFail(t, v, "data", []float64{1})
	res := mustPass(t, v, "data", []any{1.0, 2, 3.5})
	if got := res.Value.([]float64); len(got) != 3 || got[1] != 2 {
		t.Errorf("expected sanitized floats, got %#v", res.Value)
	}

	mustPass(t, v, "weights", []float64{0.2, 0.3, 0.5})
	mustFail(t, v, "weights", []float64{0.2, 0.3, 0.4})
	mustFail(t, v, "weights", []float64{-0.5, 1.5})

	mustPass(t, v, "groupLabels", []string{"a", "b"})
	mustFail(t, v, "groupLabels", []string{"a", "b", "a"})
}

func TestValidate_ArrayStructuralRules(t *testing.T) {
	v := NewValidator(nil, nil)
	ctx := context.Background()

	variance := BoundsRule{Kind: KindArray, Structural: &Structural{NonZeroVariance: true}}
	if _, err := v.ValidateWith(ctx, "x", []float64{3, 3, 3}, &variance); err == nil {
		t.Error("constant array must fail non-zero variance")
	}
	if _, err := v.ValidateWith(ctx, "x", []float64{3, 3, 4}, &variance); err != nil {
		t.Errorf("unexpected failure: %v", err)
	}

	positive := BoundsRule{Kind: KindArray, Structural: &Structural{Positive: true}}
	if _, err := v.ValidateWith(ctx, "x", []float64{1, 0}, &positive); err == nil {
		t.Error("zero must fail strict positivity")
	}

	sum := BoundsRule{Kind: KindArray, Structural: &Structural{SumToOne: true}}
	if _, err := v.ValidateWith(ctx, "p", []float64{0.1, 0.2, 0.7 + 1e-12}, &sum); err != nil {
		t.Errorf("sum within tolerance must pass: %v", err)
	}

	if _, err := v.ValidateWith(ctx, "p", []any{"a", 1}, &sum); err == nil {
		t.Error("non-numeric elements must fail numeric checks")
	}
}

// =============================================================================
// Matrices
// =============================================================================

func TestValidate_CorrelationMatrix(t *testing.T) {
	v := NewValidator(nil, nil)
	m := [][]float64{
		{1, 0.5, -0.3},
		{0.5, 1, 0.2},
		{-0.3, 0.2, 1},
	}
	mustPass(t, v, "correlationMatrix", m)

	bad := [][]float64{
		{1, 0.5, -0.3},
		{0.5, 0.9, 0.2},
		{-0.3, 0.2, 1},
	}
	vf := mustFail(t, v, "correlationMatrix", bad)
	if vf.Constraint != ErrNotCorrelation.Error() {
		t.Errorf("unexpected constraint %q", vf.Constraint)
	}
}

func TestValidate_RectangularityFirst(t *testing.T) {
	v := NewValidator(nil, nil)
	vf := mustFail(t, v, "covarianceMatrix", []any{[]any{1.0, 0.0}, []any{0.0}})
	if !strings.Contains(vf.Constraint, ErrNotRectangular.Error()) {
		t.Errorf("expected rectangularity failure, got %q", vf.Constraint)
	}
	if n := len(vf.Context["violations"].([]string)); n != 1 {
		t.Errorf("no other matrix rule may run on a ragged matrix, got %d violations", n)
	}
}

func TestMatrixPredicates(t *testing.T) {
	spd := [][]float64{{4, 2}, {2, 3}}
	if !IsSymmetric(spd) || !IsPositiveDefinite(spd) {
		t.Error("expected symmetric positive-definite")
	}
	if IsPositiveDefinite([][]float64{{1, 2}, {2, 1}}) {
		t.Error("indefinite matrix must fail Cholesky")
	}
	if IsSymmetric([][]float64{{1, 0.5}, {0.5 + 1e-9, 1}}) {
		t.Error("difference above tolerance must be asymmetric")
	}
	if !IsSymmetric([][]float64{{1, 0.5}, {0.5 + 1e-12, 1}}) {
		t.Error("difference within tolerance must be symmetric")
	}
	if IsCorrelation([][]float64{{1, 1.5}, {1.5, 1}}) {
		t.Error("off-diagonal above 1 must fail")
	}
	if err := ValidateSquare([][]float64{{1, 2, 3}, {4, 5, 6}}); !errors.Is(err, ErrNotSquare) {
		t.Errorf("expected ErrNotSquare, got %v", err)
	}

	v := NewValidator(nil, nil)
	vf := mustFail(t, v, "covarianceMatrix", [][]float64{{1, 2}, {2, 1}})
	if vf.Constraint != ErrNotPositiveDefinite.Error() {
		t.Errorf("unexpected constraint %q", vf.Constraint)
	}
}

// =============================================================================
// Custom rules and audit
// =============================================================================

func TestCustomRules_OnlyAddFailures(t *testing.T) {
	v := NewValidator(nil, nil)
	v.AddCustomRule("sampleSize", func(value any) error {
		if f, _ := toFloat(value); int64(f)%2 != 0 {
			return errors.New("must be even")
		}
		return nil
	})

	mustPass(t, v, "sampleSize", 100)
	vf := mustFail(t, v, "sampleSize", 101)
	if vf.Constraint != "must be even" {
		t.Errorf("unexpected constraint %q", vf.Constraint)
	}

	// A permissive custom rule cannot waive a built-in failure.
	v.AddCustomRule("alpha", func(any) error { return nil })
	mustFail(t, v, "alpha", 2.0)
}

func TestValidate_AuditsEveryCall(t *testing.T) {
	rec := &fakeRecorder{}
	v := NewValidator(nil, rec)

	mustPass(t, v, "power", 0.8)
	mustFail(t, v, "power", 1.0)

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	for _, ev := range rec.events {
		if ev.Category != domain.AuditValidation {
			t.Errorf("expected VALIDATION category, got %s", ev.Category)
		}
	}
	if rec.events[0].Result != domain.ResultSuccess || rec.events[1].Result != domain.ResultFailed {
		t.Errorf("unexpected results %s %s", rec.events[0].Result, rec.events[1].Result)
	}
	if rec.levels[1] != domain.LevelWarning {
		t.Errorf("expected warning level for failure, got %s", rec.levels[1])
	}
}

func TestNewValidator_Overrides(t *testing.T) {
	v := NewValidator(map[string]BoundsRule{
		"sampleSize": {Kind: KindInteger, Min: bound(30)},
	}, nil)
	mustFail(t, v, "sampleSize", 10)
	mustPass(t, v, "sampleSize", 30)
	if _, ok := v.Rule("confidenceLevel"); !ok {
		t.Error("defaults must survive overrides")
	}
}
